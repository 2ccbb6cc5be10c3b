package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// CredentialRepository defines the driven port for encrypted credential
// persistence. Implementations store ciphertext only and never see plaintext.
type CredentialRepository interface {
	// Upsert atomically inserts cred or, when a record for cred.Provider
	// already exists, replaces its ciphertext and updated_at while keeping the
	// existing id and created_at. Returns the record as persisted.
	Upsert(ctx context.Context, cred model.Credential) (model.Credential, error)

	// FindByProvider returns the record for provider, or (nil, nil) if none exists.
	FindByProvider(ctx context.Context, provider model.Provider) (*model.Credential, error)

	// FindAll returns every stored record ordered by provider.
	FindAll(ctx context.Context) ([]model.Credential, error)

	// DeleteByProvider removes the record for provider. Returns false if no
	// record existed.
	DeleteByProvider(ctx context.Context, provider model.Provider) (bool, error)

	// DeleteCorrupt removes the record for provider only if its ciphertext is
	// still exactly ciphertext. A concurrent overwrite therefore survives the
	// purge of the value it replaced.
	DeleteCorrupt(ctx context.Context, provider model.Provider, ciphertext string) (bool, error)

	// TouchLastUsed sets last_used_at for provider. Returns false if no record exists.
	TouchLastUsed(ctx context.Context, provider model.Provider, at time.Time) (bool, error)
}
