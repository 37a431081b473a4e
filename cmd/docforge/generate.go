package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docforge/internal/bundle"
	"docforge/internal/domain/pipeline"
	"docforge/internal/handoff"

	"github.com/spf13/cobra"
)

func newGenerateCommand(c *cli) *cobra.Command {
	var (
		credential string
		tests      bool
		output     string
		remote     bool
	)
	cmd := &cobra.Command{
		Use:   "generate <docs.json>",
		Short: "Generate code from an exported documentation file",
		Long: `Reads documentation written by "docforge run --docs" (or a plain
{"File.java": "markdown"} object) and generates code from it. By default the
pipeline runs in process; --remote sends it to handoff.endpoint instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(); err != nil {
				return err
			}
			quietLogs(cmd, c)
			obs := c.start("cli")
			defer c.shutdown()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open documentation: %w", err)
			}
			records, err := handoff.LoadDocumentation(f)
			_ = f.Close()
			if err != nil {
				return err
			}

			req := pipeline.GenerationRequest{
				Credential:    resolveCredential(credential),
				Records:       records,
				GenerateTests: tests,
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var result pipeline.ResultBundle
			if remote {
				client, err := handoff.NewClient(c.config.Handoff, obs)
				if err != nil {
					return err
				}
				stderr := cmd.ErrOrStderr()
				result, err = client.Send(ctx, req, func(attempt int, err error, _ time.Duration) {
					fmt.Fprintf(stderr, "%s attempt %d failed: %s\n", yellow("retry"), attempt, gray(err.Error()))
				})
				if err != nil {
					return err
				}
			} else {
				server, err := newCodegenServer(c.config, obs)
				if err != nil {
					return err
				}
				if result, err = server.Generate(ctx, req); err != nil {
					return err
				}
			}

			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "-generated.zip"
			}
			if err := writeFile(output, func(f *os.File) error { return bundle.WriteZip(f, result) }); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printOutcome(out, result, result.Outcome())
			fmt.Fprintf(out, "%s %s\n", gray("→"), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&credential, "credential", "", "generation credential (default $"+credentialEnv+")")
	cmd.Flags().BoolVar(&tests, "tests", false, "also generate unit tests")
	cmd.Flags().StringVarP(&output, "output", "o", "", "generated code archive (default <docs>-generated.zip)")
	cmd.Flags().BoolVar(&remote, "remote", false, "send to the codegen service instead of running in process")
	return cmd
}
