// Package aesgcm implements the driven Cipher port with AES-256-GCM. The
// master key is held in a memguard enclave and only decrypted into locked
// memory for the duration of a single operation.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/awnumar/memguard"

	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Cipher)(nil)

// Cipher encrypts credentials with AES-256-GCM. Output is base64 of
// nonce (12 bytes) || ciphertext || tag. Safe for concurrent use.
type Cipher struct {
	key *memguard.Enclave
}

// New builds a Cipher from key material. It never fails: empty or malformed
// material yields a random process-lifetime key, reported through the
// returned KeyOutcome. The caller decides whether that is acceptable.
func New(material string) (*Cipher, KeyOutcome) {
	if material == "" {
		return &Cipher{key: memguard.NewEnclaveRandom(KeySize)},
			KeyOutcome{Origin: KeyOriginEphemeral, Reason: ErrKeyNotConfigured}
	}

	key, err := parseKey(material)
	if err != nil {
		return &Cipher{key: memguard.NewEnclaveRandom(KeySize)},
			KeyOutcome{Origin: KeyOriginEphemeral, Reason: err}
	}

	// NewEnclave wipes key after copying it into the enclave.
	return &Cipher{key: memguard.NewEnclave(key)}, KeyOutcome{Origin: KeyOriginConfigured}
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Every failure to recover the
// plaintext wraps driven.ErrDecryption.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", driven.ErrDecryption, err)
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", driven.ErrDecryption)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", driven.ErrDecryption, err)
	}

	return string(plaintext), nil
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	buf, err := c.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
