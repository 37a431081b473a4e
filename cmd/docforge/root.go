package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docforge/internal/config"
	"docforge/internal/domain/pipeline"
	"docforge/internal/observability"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries state shared by every command.
type cli struct {
	configPath string
	viper      *viper.Viper
	config     config.Config
	loadedFrom string
	obs        *observability.Observability
}

func newRootCommand() *cobra.Command {
	c := &cli{viper: viper.New()}

	root := &cobra.Command{
		Use:   "docforge",
		Short: "Document a Java codebase and generate Spring Boot code from the documentation",
		Long: fmt.Sprintf(`%s

Two services cooperate on every run. The docs service extracts source files
from an archive and documents each one; the codegen service turns the
documentation into boilerplate and, optionally, unit tests.

%s
  docforge serve codegen                     # start the consumer on :8081
  docforge serve docs                        # start the producer on :8080
  docforge run project.zip --tests -o out.zip
  docforge generate docs.json -o out.zip     # codegen only, in process
  docforge config init`,
			bold("docforge "+appVersion()),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default ./docforge.yaml or ~/.docforge/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("provider", "", "generation provider: "+providerList())
	flags.String("model", "", "generation model")
	_ = c.viper.BindPFlag("observability.logging.level", flags.Lookup("log-level"))
	_ = c.viper.BindPFlag("llm.provider", flags.Lookup("provider"))
	_ = c.viper.BindPFlag("llm.model", flags.Lookup("model"))

	root.AddCommand(newServeCommand(c))
	root.AddCommand(newRunCommand(c))
	root.AddCommand(newGenerateCommand(c))
	root.AddCommand(newConfigCommand(c))
	root.AddCommand(newVersionCommand())
	return root
}

// load reads configuration and starts observability. Commands that need
// either call it from RunE.
func (c *cli) load() error {
	cfg, path, err := config.Load(config.WithConfigPath(c.configPath), config.WithViper(c.viper))
	if err != nil {
		return err
	}
	c.config = cfg
	c.loadedFrom = path
	return nil
}

func (c *cli) start(service string) *observability.Observability {
	cfg := c.config.Observability
	if cfg.Tracing.ServiceName == "" || cfg.Tracing.ServiceName == "docforge" {
		cfg.Tracing.ServiceName = "docforge-" + service
	}
	if cfg.Tracing.ServiceVersion == "" || cfg.Tracing.ServiceVersion == "dev" {
		cfg.Tracing.ServiceVersion = appVersion()
	}
	c.obs = observability.New(cfg)
	return c.obs
}

func (c *cli) shutdown() {
	if c.obs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Docs.Server.ShutdownTimeout)
	defer cancel()
	_ = c.obs.Shutdown(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// exitCode distinguishes caller errors from unavailable services.
func exitCode(err error) int {
	switch {
	case pipeline.IsInputError(err):
		return 2
	case errors.Is(err, pipeline.ErrHandoffUnavailable):
		return 3
	default:
		return 1
	}
}
