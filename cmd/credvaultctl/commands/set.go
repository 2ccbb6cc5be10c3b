package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ericfisherdev/credvault/internal/bootstrap"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// NewSetCommand stores or replaces a provider's credential.
func NewSetCommand(rt *Runtime) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store or replace a provider credential",
		Long: `Encrypt and store the API key for a provider, replacing any existing key.

Unless --key is given the key is read from stdin: with a terminal attached
it is prompted for without echo, otherwise the first line is used. Both
keep it out of shell history.

Examples:
  echo "$ANTHROPIC_API_KEY" | credvaultctl set anthropic
  credvaultctl set openai --key sk-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := providerArg(args)
			if err != nil {
				return err
			}

			value := model.Secret(key)
			if !cmd.Flags().Changed("key") {
				line, err := readKey(cmd)
				if err != nil {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				value = model.Secret(line)
			}

			return rt.withApp(cmd.Context(), func(app *bootstrap.App) error {
				cred, err := app.Credentials.Save(cmd.Context(), provider, value.Reveal())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s credential %s (%s)\n",
					provider, model.Mask(strings.TrimSpace(value.Reveal())), cred.ID)
				return err
			})
		},
	}
	providerArgs(cmd)

	cmd.Flags().StringVar(&key, "key", "", "API key value (default: read from stdin)")

	return cmd
}

// readKey prompts without echo on a terminal and falls back to one line
// of piped input.
func readKey(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
