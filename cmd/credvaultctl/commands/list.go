package commands

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/credvault/internal/bootstrap"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// NewListCommand lists stored credentials, masked unless --reveal is given.
func NewListCommand(rt *Runtime) *cobra.Command {
	var (
		reveal bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Long: `List every stored credential. Values are masked to their last four
characters unless --reveal is given. Records that can no longer be
decrypted are purged and omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd.Context(), func(app *bootstrap.App) error {
				creds, err := app.Credentials.GetAll(cmd.Context())
				if err != nil {
					return err
				}

				providers := make([]string, 0, len(creds))
				values := make(map[string]string, len(creds))
				for p, v := range creds {
					providers = append(providers, string(p))
					if reveal {
						values[string(p)] = v
					} else {
						values[string(p)] = model.Mask(v)
					}
				}
				slices.Sort(providers)

				out := cmd.OutOrStdout()
				switch output {
				case "json":
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(values)
				case "yaml":
					enc := yaml.NewEncoder(out)
					enc.SetIndent(2)
					if err := enc.Encode(values); err != nil {
						return err
					}
					return enc.Close()
				case "text":
				default:
					return fmt.Errorf("unknown output format %q (want text, json or yaml)", output)
				}

				if len(providers) == 0 {
					_, err := fmt.Fprintln(out, "No credentials stored.")
					return err
				}

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "PROVIDER\tKEY")
				for _, p := range providers {
					fmt.Fprintf(tw, "%s\t%s\n", p, values[p])
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print plaintext values")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")

	return cmd
}
