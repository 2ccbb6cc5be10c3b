package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/credvault/internal/bootstrap"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// ErrCheckFailed is returned when any diagnostic fails.
var ErrCheckFailed = errors.New("one or more checks failed")

const roundTripSample = "credvault-check-sample"

// NewCheckCommand runs storage and encryption diagnostics.
func NewCheckCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Diagnose database and encryption setup",
		Long: `Verify that the database is reachable and migrated, that the encryption
key round-trips, and report how many stored credentials the current key can
decrypt. Check only reads: records it cannot decrypt are reported, never
purged, so a wrong key can be diagnosed without losing data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withApp(cmd.Context(), func(app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				failed := false

				// Opening the app already applied migrations.
				if err := app.Ping(cmd.Context()); err != nil {
					failed = true
					report(out, "database", err, "")
				} else {
					report(out, "database", nil, fmt.Sprintf("%s, schema version %d", app.Backend, app.SchemaVersion))
				}

				keyDetail := string(app.KeyOutcome.Origin)
				if app.KeyOutcome.Ephemeral() {
					keyDetail = fmt.Sprintf("%s (%v)", keyDetail, app.KeyOutcome.Reason)
				}
				report(out, "encryption key", nil, keyDetail)

				if err := roundTrip(app); err != nil {
					failed = true
					report(out, "encryption", err, "")
				} else {
					report(out, "encryption", nil, "round trip ok")
				}

				total, unreadable, err := countReadable(cmd.Context(), app)
				switch {
				case err != nil:
					failed = true
					report(out, "credentials", err, "")
				case unreadable > 0:
					failed = true
					report(out, "credentials", fmt.Errorf("%d of %d undecryptable", unreadable, total), "")
				default:
					report(out, "credentials", nil, fmt.Sprintf("%d readable", total))
				}

				if failed {
					return ErrCheckFailed
				}
				return nil
			})
		},
	}
}

// countReadable trial-decrypts every stored record with the app's cipher.
// It reads the repository directly so nothing is quarantined. Under an
// ephemeral key every existing record counts as unreadable.
func countReadable(ctx context.Context, app *bootstrap.App) (total, unreadable int, err error) {
	creds, err := app.Repository.FindAll(ctx)
	if err != nil {
		return 0, 0, err
	}
	if app.KeyOutcome.Ephemeral() {
		return len(creds), len(creds), nil
	}

	for _, cred := range creds {
		_, err := app.Cipher.Decrypt(cred.Ciphertext)
		if errors.Is(err, driven.ErrDecryption) {
			unreadable++
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("decrypt credential %q: %w", cred.Provider, err)
		}
	}
	return len(creds), unreadable, nil
}

func roundTrip(app *bootstrap.App) error {
	ct, err := app.Cipher.Encrypt(roundTripSample)
	if err != nil {
		return err
	}
	pt, err := app.Cipher.Decrypt(ct)
	if err != nil {
		return err
	}
	if pt != roundTripSample {
		return errors.New("decrypted value does not match")
	}
	return nil
}

func report(w io.Writer, name string, err error, detail string) {
	if err != nil {
		fmt.Fprintf(w, "FAIL  %-15s %v\n", name, err)
		return
	}
	fmt.Fprintf(w, "ok    %-15s %s\n", name, detail)
}
