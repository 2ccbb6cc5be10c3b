package application

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// memRepo is an in-memory driven.CredentialRepository with upsert semantics
// matching the SQL adapters.
type memRepo struct {
	mu      sync.Mutex
	records map[model.Provider]model.Credential

	findErr   error
	upsertErr error
	deleteErr error
	touchErr  error

	calls int
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[model.Provider]model.Credential)}
}

func (r *memRepo) Upsert(_ context.Context, cred model.Credential) (model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.upsertErr != nil {
		return model.Credential{}, r.upsertErr
	}
	if existing, ok := r.records[cred.Provider]; ok {
		existing.Ciphertext = cred.Ciphertext
		existing.UpdatedAt = cred.UpdatedAt
		r.records[cred.Provider] = existing
		return existing, nil
	}
	r.records[cred.Provider] = cred
	return cred, nil
}

func (r *memRepo) FindByProvider(_ context.Context, provider model.Provider) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.findErr != nil {
		return nil, r.findErr
	}
	cred, ok := r.records[provider]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (r *memRepo) FindAll(_ context.Context) ([]model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.findErr != nil {
		return nil, r.findErr
	}
	all := make([]model.Credential, 0, len(r.records))
	for _, cred := range r.records {
		all = append(all, cred)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Provider < all[j].Provider })
	return all, nil
}

func (r *memRepo) DeleteByProvider(_ context.Context, provider model.Provider) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	_, ok := r.records[provider]
	delete(r.records, provider)
	return ok, nil
}

func (r *memRepo) DeleteCorrupt(_ context.Context, provider model.Provider, ciphertext string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	cred, ok := r.records[provider]
	if !ok || cred.Ciphertext != ciphertext {
		return false, nil
	}
	delete(r.records, provider)
	return true, nil
}

func (r *memRepo) TouchLastUsed(_ context.Context, provider model.Provider, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.touchErr != nil {
		return false, r.touchErr
	}
	cred, ok := r.records[provider]
	if !ok {
		return false, nil
	}
	cred.LastUsedAt = &at
	r.records[provider] = cred
	return true, nil
}

func (r *memRepo) get(provider model.Provider) (model.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.records[provider]
	return cred, ok
}

func (r *memRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// tamper flips one byte of the stored ciphertext for provider.
func (r *memRepo) tamper(t *testing.T, provider model.Provider) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.records[provider]
	require.True(t, ok, "no record to tamper with for %s", provider)
	raw, err := base64.StdEncoding.DecodeString(cred.Ciphertext)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	cred.Ciphertext = base64.StdEncoding.EncodeToString(raw)
	r.records[provider] = cred
}

// fakeMetrics counts recorded events.
type fakeMetrics struct {
	mu          sync.Mutex
	saved       map[model.Provider]int
	quarantined map[model.Provider]int
	resolved    map[model.CredentialSource]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		saved:       make(map[model.Provider]int),
		quarantined: make(map[model.Provider]int),
		resolved:    make(map[model.CredentialSource]int),
	}
}

func (m *fakeMetrics) CredentialSaved(p model.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[p]++
}

func (m *fakeMetrics) CredentialQuarantined(p model.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quarantined[p]++
}

func (m *fakeMetrics) CredentialResolved(_ model.Provider, source model.CredentialSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved[source]++
}

// brokenCipher fails every operation with a non-decryption error.
type brokenCipher struct{}

var errEnclave = errors.New("enclave unavailable")

func (brokenCipher) Encrypt(string) (string, error) { return "", errEnclave }
func (brokenCipher) Decrypt(string) (string, error) { return "", errEnclave }

func newTestCipher(t *testing.T) *aesgcm.Cipher {
	t.Helper()
	key := make([]byte, aesgcm.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, outcome := aesgcm.New(base64.StdEncoding.EncodeToString(key))
	require.False(t, outcome.Ephemeral())
	return c
}
