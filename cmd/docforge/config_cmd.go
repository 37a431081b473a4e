package main

import (
	"fmt"
	"os"

	"docforge/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := path
			if target == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolve home directory: %w", err)
				}
				target = config.DefaultPath(home)
			}
			if err := config.Save(target, config.Default(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("wrote"), target)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "destination (default ~/.docforge/config.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n", describePath(c.loadedFrom))
			return config.Encode(out, c.config)
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
