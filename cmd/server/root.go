package main

import (
	"github.com/spf13/cobra"

	"github.com/taskvault/backend/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskvault",
		Short: "taskvault - authenticated task API",
		Long: `taskvault serves a per-user todo API with JWT access tokens,
rotating refresh tokens and rate limited authentication.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &serveOptions{migrate: true})
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (.env format, default ./.env)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

func loadConfig() (config.Config, error) {
	return config.Load(configFile)
}
