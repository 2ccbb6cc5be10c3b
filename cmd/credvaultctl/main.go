package main

import (
	"context"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credvault/cmd/credvaultctl/commands"
	"github.com/ericfisherdev/credvault/internal/bootstrap"
	"github.com/ericfisherdev/credvault/internal/config"
	"github.com/ericfisherdev/credvault/internal/logging"
)

var version = "dev"

func main() {
	err := run()
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var debug bool

	rt := &commands.Runtime{
		Open: func(ctx context.Context) (*bootstrap.App, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			// Keep stdout clean for scripting; only warnings reach stderr.
			level := "warn"
			if debug {
				level = "debug"
			}
			return bootstrap.New(ctx, cfg, logging.New(level, cfg.LogFormat, os.Stderr))
		},
	}

	rootCmd := &cobra.Command{
		Use:   "credvaultctl",
		Short: "Manage AI provider credentials stored by credvault",
		Long: `credvaultctl reads and writes the credvault credential store directly,
using the same CREDVAULT_* environment variables as the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewKeygenCommand(),
		commands.NewListCommand(rt),
		commands.NewSetCommand(rt),
		commands.NewDeleteCommand(rt),
		commands.NewResolveCommand(rt),
		commands.NewCheckCommand(rt),
	)

	return rootCmd.Execute()
}
