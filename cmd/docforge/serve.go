package main

import (
	"docforge/internal/logging"
	serverhttp "docforge/internal/server/http"

	"github.com/spf13/cobra"
)

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one of the services",
	}

	var docsAddr string
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Serve the documentation (producer) API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(); err != nil {
				return err
			}
			cfg := c.config
			if docsAddr != "" {
				cfg.Docs.Server.Addr = docsAddr
			}
			obs := c.start("docs")
			defer c.shutdown()

			runner, err := newRunner(cfg, obs)
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger("serve-docs")
			logger.Info("Handing off to %s (config: %s)", cfg.Handoff.Endpoint, describePath(c.loadedFrom))

			router := serverhttp.NewDocsRouter(runner, obs, routerConfig("docs", cfg.Docs.Server, cfg.Docs.GenerateTests))
			server := serverhttp.NewServer(router, serverConfig(cfg.Docs.Server))
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serverhttp.Serve(ctx, server, cfg.Docs.Server.ShutdownTimeout, logger)
		},
	}
	docs.Flags().StringVar(&docsAddr, "addr", "", "listen address (overrides docs.server.addr)")

	var codegenAddr string
	codegen := &cobra.Command{
		Use:   "codegen",
		Short: "Serve the code-generation (consumer) API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(); err != nil {
				return err
			}
			cfg := c.config
			if codegenAddr != "" {
				cfg.Codegen.Server.Addr = codegenAddr
			}
			obs := c.start("codegen")
			defer c.shutdown()

			handler, err := newCodegenServer(cfg, obs)
			if err != nil {
				return err
			}
			logger := logging.NewComponentLogger("serve-codegen")
			logger.Info("Generating with %s/%s (config: %s)", cfg.LLM.Provider, cfg.LLM.Model, describePath(c.loadedFrom))

			router := serverhttp.NewCodegenRouter(handler, obs, routerConfig("codegen", cfg.Codegen.Server, false))
			server := serverhttp.NewServer(router, serverConfig(cfg.Codegen.Server))
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serverhttp.Serve(ctx, server, cfg.Codegen.Server.ShutdownTimeout, logger)
		},
	}
	codegen.Flags().StringVar(&codegenAddr, "addr", "", "listen address (overrides codegen.server.addr)")

	cmd.AddCommand(docs, codegen)
	return cmd
}

func describePath(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
