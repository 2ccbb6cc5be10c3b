package model

import "time"

// Credential is the persisted form of a provider API key. Ciphertext is the
// only representation of the secret that ever reaches storage.
type Credential struct {
	ID         string
	Provider   Provider
	Ciphertext string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}

// CredentialSource identifies where a resolved credential came from.
type CredentialSource string

const (
	SourceStored      CredentialSource = "stored"
	SourceEnvironment CredentialSource = "environment"
	SourceNone        CredentialSource = "none"
)

// Resolution is the outcome of resolving a provider credential for use.
type Resolution struct {
	Provider Provider
	Value    string
	Source   CredentialSource
}
