package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credvault/internal/bootstrap"
)

// NewDeleteCommand removes a provider's stored credential.
func NewDeleteCommand(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <provider>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored provider credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerArg(args)
			if err != nil {
				return err
			}

			return rt.withApp(cmd.Context(), func(app *bootstrap.App) error {
				deleted, err := app.Credentials.Delete(cmd.Context(), provider)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("no credential stored for %s", provider)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s credential\n", provider)
				return err
			})
		},
	}
	providerArgs(cmd)

	return cmd
}
