package driven

import "errors"

// ErrDecryption is returned by Cipher.Decrypt when a blob is malformed, was
// sealed under a different key, or fails authentication. Callers cannot and
// should not distinguish between those cases.
var ErrDecryption = errors.New("credential ciphertext could not be decrypted")

// Cipher seals and opens short text secrets under a single master key.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
