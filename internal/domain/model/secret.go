package model

import (
	"fmt"
	"io"
	"log/slog"
)

const redacted = "[REDACTED]"

// Secret holds a plaintext credential while it is in flight. Formatting it
// with fmt or slog never reveals the value; use Reveal to get the string.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string { return redacted }

// GoString implements fmt.GoStringer.
func (s Secret) GoString() string { return redacted }

// Format implements fmt.Formatter so every verb is redacted.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Reveal returns the plaintext value.
func (s Secret) Reveal() string { return string(s) }

// Mask returns a display form of a credential that keeps only the last four
// characters, e.g. "••••••••3f9a".
func Mask(value string) string {
	const visible = 4
	runes := []rune(value)
	if len(runes) <= visible {
		return "••••"
	}
	return "••••••••" + string(runes[len(runes)-visible:])
}
