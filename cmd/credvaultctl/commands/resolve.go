package commands

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credvault/internal/bootstrap"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

// NewResolveCommand shows which credential a consumer would receive.
func NewResolveCommand(rt *Runtime) *cobra.Command {
	var (
		reveal bool
		copyTo bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <provider>",
		Short: "Show the credential a provider resolves to",
		Long: `Resolve a provider's credential the way the service does: the stored
key wins, otherwise the provider's environment variable is used.

With --reveal only the raw value is printed, for use in scripts:
  export ANTHROPIC_API_KEY=$(credvaultctl resolve anthropic --reveal)

With --copy the value goes to the system clipboard instead of stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerArg(args)
			if err != nil {
				return err
			}

			return rt.withApp(cmd.Context(), func(app *bootstrap.App) error {
				res, ok, err := app.Credentials.Resolve(cmd.Context(), provider)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no credential for %s: nothing stored and %s is not set", provider, provider.EnvVar())
				}

				out := cmd.OutOrStdout()
				if copyTo {
					if err := writeClipboard(res.Value); err != nil {
						return fmt.Errorf("copy to clipboard: %w", err)
					}
					_, err = fmt.Fprintf(out, "Copied %s credential to clipboard (source: %s)\n", provider, res.Source)
					return err
				}
				if reveal {
					_, err = fmt.Fprint(out, res.Value)
					return err
				}
				_, err = fmt.Fprintf(out, "%s: %s (source: %s)\n", provider, model.Mask(res.Value), res.Source)
				return err
			})
		},
	}
	providerArgs(cmd)

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print only the plaintext value")
	cmd.Flags().BoolVar(&copyTo, "copy", false, "Copy the plaintext value to the clipboard")
	cmd.MarkFlagsMutuallyExclusive("reveal", "copy")

	return cmd
}
