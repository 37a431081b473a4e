package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docforge/internal/bundle"
	"docforge/internal/domain/pipeline"
	"docforge/internal/handoff"
	"docforge/internal/orchestrator"

	"github.com/spf13/cobra"
)

const credentialEnv = "DOCFORGE_API_KEY"

type runFlags struct {
	credential string
	tests      bool
	output     string
	docsOut    string
	markdown   bool
	jsonReport bool
}

func newRunCommand(c *cli) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <archive.zip>",
		Short: "Document an archive and hand it to the codegen service",
		Long: `Extracts the archive, documents every source file and sends the
documentation to the codegen service configured under handoff.endpoint.
The generated code is written as a zip archive.

The credential is read from --credential or ` + credentialEnv + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(); err != nil {
				return err
			}
			quietLogs(cmd, c)
			if !cmd.Flags().Changed("tests") {
				flags.tests = c.config.Docs.GenerateTests
			}
			obs := c.start("cli")
			defer c.shutdown()

			archive, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}
			runner, err := newRunner(c.config, obs)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			stderr := cmd.ErrOrStderr()
			report, err := runner.Run(ctx, archive, orchestrator.Options{
				Credential:    resolveCredential(flags.credential),
				GenerateTests: flags.tests,
			}, func(e orchestrator.Event) { printEvent(stderr, e) })
			if err != nil {
				return err
			}
			return writeRunOutputs(cmd, report, flags, args[0])
		},
	}
	cmd.Flags().StringVar(&flags.credential, "credential", "", "generation credential (default $"+credentialEnv+")")
	cmd.Flags().BoolVar(&flags.tests, "tests", false, "also generate unit tests (default docs.generate_tests)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "generated code archive (default <archive>-generated.zip)")
	cmd.Flags().StringVar(&flags.docsOut, "docs", "", "also write the documentation as JSON to this file")
	cmd.Flags().BoolVar(&flags.markdown, "markdown", false, "render the documentation in the terminal")
	cmd.Flags().BoolVar(&flags.jsonReport, "json", false, "print the run report as JSON instead of a summary")
	return cmd
}

func writeRunOutputs(cmd *cobra.Command, report *orchestrator.Report, flags runFlags, archivePath string) error {
	out := cmd.OutOrStdout()
	records := pipeline.RecordSet(report.Records)

	if flags.docsOut != "" {
		if err := writeFile(flags.docsOut, func(f *os.File) error { return handoff.WriteDocumentation(f, records) }); err != nil {
			return err
		}
	}
	output := flags.output
	if output == "" {
		output = strings.TrimSuffix(archivePath, filepath.Ext(archivePath)) + "-generated.zip"
	}
	if err := writeFile(output, func(f *os.File) error { return bundle.WriteZip(f, report.Bundle) }); err != nil {
		return err
	}

	if flags.jsonReport {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if flags.markdown && isTTY() {
		if err := printDocumentation(out, records); err != nil {
			return err
		}
		if report.Architecture != "" {
			if err := printDocumentation(out, pipeline.RecordSet{{UnitName: "Architecture", Body: report.Architecture, Status: pipeline.StatusOK}}); err != nil {
				return err
			}
		}
	}
	if report.ArchitectureError != "" {
		fmt.Fprintf(out, "%s %s\n", yellow("architecture overview failed:"), report.ArchitectureError)
	}
	printOutcome(out, report.Bundle, report.Outcome)
	fmt.Fprintf(out, "%s %s\n", gray("run "+report.RunID+" →"), output)
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func resolveCredential(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return os.Getenv(credentialEnv)
}

// quietLogs keeps service logs out of the progress output unless a level was
// asked for.
func quietLogs(cmd *cobra.Command, c *cli) {
	if !cmd.Flags().Changed("log-level") {
		c.config.Observability.Logging.Level = "warn"
	}
}
