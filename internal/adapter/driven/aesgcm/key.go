package aesgcm

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrKeyNotConfigured is the ephemeral-key reason when no key material was supplied.
var ErrKeyNotConfigured = errors.New("encryption key not configured: set CREDVAULT_ENCRYPTION_KEY")

// KeyInitializationError reports key material that could not be decoded into
// a 32-byte AES key.
type KeyInitializationError struct {
	Reason string
}

func (e *KeyInitializationError) Error() string {
	return "invalid encryption key: " + e.Reason
}

// KeyOrigin tags how the cipher obtained its master key.
type KeyOrigin string

const (
	// KeyOriginConfigured means the supplied key material was used.
	KeyOriginConfigured KeyOrigin = "configured"
	// KeyOriginEphemeral means a random key was generated for this process;
	// anything encrypted under it is unrecoverable after restart.
	KeyOriginEphemeral KeyOrigin = "ephemeral"
)

// KeyOutcome is the tagged result of loading the master key. Reason is set
// only for ephemeral keys and is either ErrKeyNotConfigured or a
// *KeyInitializationError.
type KeyOutcome struct {
	Origin KeyOrigin
	Reason error
}

// Ephemeral reports whether the cipher fell back to a generated key.
func (o KeyOutcome) Ephemeral() bool {
	return o.Origin == KeyOriginEphemeral
}

// parseKey decodes material as hex or base64 (standard or URL alphabet,
// padded or raw) and requires exactly KeySize bytes.
func parseKey(material string) ([]byte, error) {
	material = strings.TrimSpace(material)

	if len(material) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(material); err == nil {
			return key, nil
		}
	}

	encodings := []*base64.Encoding{
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawURLEncoding,
		base64.RawStdEncoding,
	}
	for _, enc := range encodings {
		key, err := enc.DecodeString(material)
		if err != nil {
			continue
		}
		if len(key) != KeySize {
			return nil, &KeyInitializationError{
				Reason: fmt.Sprintf("decoded key is %d bytes, want %d", len(key), KeySize),
			}
		}
		return key, nil
	}

	return nil, &KeyInitializationError{Reason: "key must be base64 or hex encoded"}
}

// GenerateKey returns a new random key encoded as URL-safe base64, suitable
// for CREDVAULT_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}
