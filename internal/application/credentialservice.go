package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// CredentialService manages provider API keys encrypted at rest and resolves
// them for use, preferring stored values over environment variables.
// Plaintext is never cached; every read decrypts from storage.
type CredentialService struct {
	repo    driven.CredentialRepository
	cipher  driven.Cipher
	env     driven.Environment
	metrics driven.CredentialMetrics
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewCredentialService creates a CredentialService. metrics may be nil.
func NewCredentialService(
	repo driven.CredentialRepository,
	cipher driven.Cipher,
	env driven.Environment,
	metrics driven.CredentialMetrics,
	logger *slog.Logger,
) *CredentialService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		repo:    repo,
		cipher:  cipher,
		env:     env,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Save encrypts plaintext and creates or replaces the credential for
// provider. Surrounding whitespace is trimmed before encryption.
func (s *CredentialService) Save(ctx context.Context, provider model.Provider, plaintext string) (model.Credential, error) {
	if err := validateProvider(provider); err != nil {
		return model.Credential{}, err
	}

	value := strings.TrimSpace(plaintext)
	if value == "" {
		return model.Credential{}, &model.ValidationError{Field: "key", Message: "API key cannot be empty"}
	}

	ciphertext, err := s.cipher.Encrypt(value)
	if err != nil {
		return model.Credential{}, fmt.Errorf("encrypt credential %q: %w", provider, err)
	}

	now := s.now()
	saved, err := s.repo.Upsert(ctx, model.Credential{
		ID:         s.newID(),
		Provider:   provider,
		Ciphertext: ciphertext,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return model.Credential{}, err
	}

	s.metrics.CredentialSaved(provider)
	s.logger.Info("credential saved", "provider", provider, "id", saved.ID)
	return saved, nil
}

// Get returns the decrypted credential for provider. A missing record yields
// ("", false, nil). A record that fails decryption is quarantined and also
// reported as absent.
func (s *CredentialService) Get(ctx context.Context, provider model.Provider) (string, bool, error) {
	if err := validateProvider(provider); err != nil {
		return "", false, err
	}

	cred, err := s.repo.FindByProvider(ctx, provider)
	if err != nil {
		return "", false, err
	}
	if cred == nil {
		return "", false, nil
	}

	plaintext, err := s.cipher.Decrypt(cred.Ciphertext)
	if errors.Is(err, driven.ErrDecryption) {
		s.quarantine(ctx, *cred, err)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("decrypt credential %q: %w", provider, err)
	}

	return plaintext, true, nil
}

// decryptResult is the per-record outcome of an aggregate read.
type decryptResult struct {
	cred      model.Credential
	plaintext string
	err       error
}

// decryptAll lazily decrypts each record independently.
func (s *CredentialService) decryptAll(creds []model.Credential) iter.Seq[decryptResult] {
	return func(yield func(decryptResult) bool) {
		for _, cred := range creds {
			plaintext, err := s.cipher.Decrypt(cred.Ciphertext)
			if !yield(decryptResult{cred: cred, plaintext: plaintext, err: err}) {
				return
			}
		}
	}
}

// GetAll returns every stored credential decrypted, keyed by provider.
// Records that fail decryption are excluded from the result and then purged;
// one poisoned record never fails the listing.
func (s *CredentialService) GetAll(ctx context.Context) (map[model.Provider]string, error) {
	creds, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[model.Provider]string, len(creds))
	var corrupt []decryptResult
	for r := range s.decryptAll(creds) {
		switch {
		case r.err == nil:
			result[r.cred.Provider] = r.plaintext
		case errors.Is(r.err, driven.ErrDecryption):
			corrupt = append(corrupt, r)
		default:
			return nil, fmt.Errorf("decrypt credential %q: %w", r.cred.Provider, r.err)
		}
	}

	for _, r := range corrupt {
		s.quarantine(ctx, r.cred, r.err)
	}

	return result, nil
}

// Delete removes the credential for provider. It reports false, not an
// error, when nothing was stored.
func (s *CredentialService) Delete(ctx context.Context, provider model.Provider) (bool, error) {
	if err := validateProvider(provider); err != nil {
		return false, err
	}

	deleted, err := s.repo.DeleteByProvider(ctx, provider)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("credential deleted", "provider", provider)
	}
	return deleted, nil
}

// TouchLastUsed records that the stored credential for provider was used.
// Best effort: failures are logged, never returned.
func (s *CredentialService) TouchLastUsed(ctx context.Context, provider model.Provider) {
	if !provider.Valid() {
		return
	}
	if _, err := s.repo.TouchLastUsed(ctx, provider, s.now()); err != nil {
		s.logger.Warn("failed to update credential last used", "provider", provider, "error", err)
	}
}

// Resolve returns the credential a consumer should use for provider: the
// stored value if one decrypts, otherwise the provider's environment
// variable. The stored value always wins. ok is false when neither exists.
func (s *CredentialService) Resolve(ctx context.Context, provider model.Provider) (model.Resolution, bool, error) {
	if err := validateProvider(provider); err != nil {
		return model.Resolution{}, false, err
	}

	value, ok, err := s.Get(ctx, provider)
	if err != nil {
		return model.Resolution{}, false, err
	}
	if ok {
		s.TouchLastUsed(ctx, provider)
		s.metrics.CredentialResolved(provider, model.SourceStored)
		return model.Resolution{Provider: provider, Value: value, Source: model.SourceStored}, true, nil
	}

	if v, found := s.env.LookupEnv(provider.EnvVar()); found && strings.TrimSpace(v) != "" {
		s.metrics.CredentialResolved(provider, model.SourceEnvironment)
		return model.Resolution{Provider: provider, Value: v, Source: model.SourceEnvironment}, true, nil
	}

	s.metrics.CredentialResolved(provider, model.SourceNone)
	return model.Resolution{Provider: provider, Source: model.SourceNone}, false, nil
}

// quarantine purges a record whose ciphertext failed decryption. The delete
// is conditional on the ciphertext so a concurrent Save is never undone.
func (s *CredentialService) quarantine(ctx context.Context, cred model.Credential, cause error) {
	s.logger.Warn("stored credential failed decryption",
		"provider", cred.Provider,
		"id", cred.ID,
		"error", cause,
	)

	deleted, err := s.repo.DeleteCorrupt(ctx, cred.Provider, cred.Ciphertext)
	if err != nil {
		s.logger.Error("failed to purge corrupt credential", "provider", cred.Provider, "id", cred.ID, "error", err)
		return
	}
	if deleted {
		s.metrics.CredentialQuarantined(cred.Provider)
		s.logger.Warn("corrupt credential purged", "provider", cred.Provider, "id", cred.ID)
	}
}

func validateProvider(provider model.Provider) error {
	if provider.Valid() {
		return nil
	}
	_, err := model.ParseProvider(string(provider))
	return err
}

type nopMetrics struct{}

func (nopMetrics) CredentialSaved(model.Provider)                            {}
func (nopMetrics) CredentialQuarantined(model.Provider)                      {}
func (nopMetrics) CredentialResolved(model.Provider, model.CredentialSource) {}
