// Package commands implements the credvaultctl subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credvault/internal/bootstrap"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// Runtime gives commands access to the wired application. Open is called at
// most once per command invocation.
type Runtime struct {
	Open func(ctx context.Context) (*bootstrap.App, error)
}

// withApp opens the application, runs fn and closes the database.
func (rt *Runtime) withApp(ctx context.Context, fn func(*bootstrap.App) error) error {
	app, err := rt.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	return fn(app)
}

// providerArg validates the single positional provider argument.
func providerArg(args []string) (model.Provider, error) {
	p, err := model.ParseProvider(args[0])
	if err != nil {
		return "", fmt.Errorf("%w (supported: %v)", err, model.ProviderNames())
	}
	return p, nil
}

// providerArgs sets the argument rules shared by provider-scoped commands.
func providerArgs(cmd *cobra.Command) {
	cmd.Args = cobra.ExactArgs(1)
	cmd.ValidArgs = model.ProviderNames()
}
