package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credvault/internal/adapter/driven/aesgcm"
)

// NewKeygenCommand prints a fresh master key.
func NewKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new encryption key",
		Long: `Generate a random 256-bit key, URL-safe base64 encoded, for
CREDVAULT_ENCRYPTION_KEY.

Changing the key makes every previously stored credential unreadable; such
records are purged the next time they are read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := aesgcm.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}
