package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/adapter/driven/environment"
	"github.com/ericfisherdev/credvault/internal/domain/model"
)

type serviceFixture struct {
	svc     *CredentialService
	repo    *memRepo
	metrics *fakeMetrics
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, env environment.Map) serviceFixture {
	t.Helper()
	repo := newMemRepo()
	metrics := newFakeMetrics()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if env == nil {
		env = environment.Map{}
	}
	svc := NewCredentialService(repo, newTestCipher(t), env, metrics, logger)
	return serviceFixture{svc: svc, repo: repo, metrics: metrics, logs: logs}
}

func TestCredentialService_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderAnthropic, "sk-test-123")
	require.NoError(t, err)

	val, ok, err := f.svc.Get(ctx, model.ProviderAnthropic)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-test-123", val)

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Provider]string{model.ProviderAnthropic: "sk-test-123"}, all)

	deleted, err := f.svc.Delete(ctx, model.ProviderAnthropic)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err = f.svc.Get(ctx, model.ProviderAnthropic)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err = f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCredentialService_RoundTripAllProviders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, p := range model.SupportedProviders() {
		for _, value := range []string{"k", "sk-" + string(p) + "-0123456789", "with inner spaces ok"} {
			_, err := f.svc.Save(ctx, p, value)
			require.NoError(t, err)

			got, ok, err := f.svc.Get(ctx, p)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, value, got)
		}
	}
}

func TestCredentialService_SaveNeverPersistsPlaintext(t *testing.T) {
	f := newFixture(t, nil)

	saved, err := f.svc.Save(context.Background(), model.ProviderOpenAI, "sk-plaintext-value")
	require.NoError(t, err)

	stored, ok := f.repo.get(model.ProviderOpenAI)
	require.True(t, ok)
	assert.NotEmpty(t, stored.Ciphertext)
	assert.NotContains(t, stored.Ciphertext, "sk-plaintext-value")
	assert.Equal(t, stored.Ciphertext, saved.Ciphertext)
	assert.NotContains(t, f.logs.String(), "sk-plaintext-value")
}

func TestCredentialService_SaveTrimsWhitespace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderGoogle, "  key-with-padding \n")
	require.NoError(t, err)

	got, ok, err := f.svc.Get(ctx, model.ProviderGoogle)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-with-padding", got)
}

func TestCredentialService_SaveOverwriteKeepsIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return t0 }

	first, err := f.svc.Save(ctx, model.ProviderQwen, "first")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return t0.Add(time.Hour) }
	second, err := f.svc.Save(ctx, model.ProviderQwen, "second")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, t0, second.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), second.UpdatedAt)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	got, _, err := f.svc.Get(ctx, model.ProviderQwen)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	assert.Equal(t, 2, f.metrics.saved[model.ProviderQwen])
}

func TestCredentialService_SaveValidation(t *testing.T) {
	tests := []struct {
		name      string
		provider  model.Provider
		key       string
		wantField string
	}{
		{name: "unsupported provider", provider: "not_a_real_provider", key: "sk-1", wantField: "provider"},
		{name: "empty provider", provider: "", key: "sk-1", wantField: "provider"},
		{name: "empty key", provider: model.ProviderAnthropic, key: "", wantField: "key"},
		{name: "whitespace key", provider: model.ProviderAnthropic, key: "   ", wantField: "key"},
		{name: "tabs and newlines", provider: model.ProviderOpenAI, key: "\t\n ", wantField: "key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			_, err := f.svc.Save(context.Background(), tt.provider, tt.key)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))

			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)

			assert.Zero(t, f.repo.callCount(), "validation must reject before any persistence I/O")
		})
	}
}

func TestCredentialService_GetMissingIsAbsent(t *testing.T) {
	f := newFixture(t, nil)

	for _, p := range model.SupportedProviders() {
		val, ok, err := f.svc.Get(context.Background(), p)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, val)
	}
}

func TestCredentialService_GetUnsupportedProvider(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.svc.Get(context.Background(), "not_a_real_provider")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Zero(t, f.repo.callCount())
}

func TestCredentialService_GetQuarantinesTamperedRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderAnthropic, "sk-test-123")
	require.NoError(t, err)
	f.repo.tamper(t, model.ProviderAnthropic)

	val, ok, err := f.svc.Get(ctx, model.ProviderAnthropic)
	require.NoError(t, err, "corruption must never surface as an error")
	assert.False(t, ok)
	assert.Empty(t, val)

	_, exists := f.repo.get(model.ProviderAnthropic)
	assert.False(t, exists, "corrupt record must be purged")
	assert.Equal(t, 1, f.metrics.quarantined[model.ProviderAnthropic])
	assert.Contains(t, f.logs.String(), "corrupt credential purged")
}

func TestCredentialService_GetAllQuarantinesOnlyCorruptRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderAnthropic, "sk-ant")
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, model.ProviderOpenAI, "sk-oai")
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, model.ProviderGoogle, "g-key")
	require.NoError(t, err)

	f.repo.tamper(t, model.ProviderOpenAI)

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Provider]string{
		model.ProviderAnthropic: "sk-ant",
		model.ProviderGoogle:    "g-key",
	}, all)

	_, exists := f.repo.get(model.ProviderOpenAI)
	assert.False(t, exists)
	_, exists = f.repo.get(model.ProviderAnthropic)
	assert.True(t, exists)
	assert.Equal(t, 1, f.metrics.quarantined[model.ProviderOpenAI])
}

func TestCredentialService_GetAllRecordUnderForeignKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// A record written under a previous (ephemeral) key.
	_, err := f.repo.Upsert(ctx, model.Credential{
		ID:         "legacy",
		Provider:   model.ProviderQwen,
		Ciphertext: "c29tZSBvdGhlciBrZXkgZW50aXJlbHksIG5vdCBvdXJzIGF0IGFsbA==",
	})
	require.NoError(t, err)

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, exists := f.repo.get(model.ProviderQwen)
	assert.False(t, exists)
}

func TestCredentialService_GetAllPurgeFailureIsLoggedNotRaised(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderGoogle, "g-key")
	require.NoError(t, err)
	f.repo.tamper(t, model.ProviderGoogle)
	f.repo.deleteErr = errors.New("disk full")

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Contains(t, f.logs.String(), "failed to purge corrupt credential")
	assert.Zero(t, f.metrics.quarantined[model.ProviderGoogle])
}

func TestCredentialService_QuarantineSparesConcurrentOverwrite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderAnthropic, "old")
	require.NoError(t, err)
	f.repo.tamper(t, model.ProviderAnthropic)
	corrupt, _ := f.repo.get(model.ProviderAnthropic)

	// A fresh save lands between the read and the purge.
	_, err = f.svc.Save(ctx, model.ProviderAnthropic, "fresh")
	require.NoError(t, err)

	f.svc.quarantine(ctx, corrupt, errors.New("simulated decrypt failure"))

	got, ok, err := f.svc.Get(ctx, model.ProviderAnthropic)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", got)
}

func TestCredentialService_PersistenceErrorsPropagate(t *testing.T) {
	errConn := errors.New("connection lost")
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.findErr = errConn
		_, _, err := f.svc.Get(ctx, model.ProviderOpenAI)
		assert.ErrorIs(t, err, errConn)
	})

	t.Run("get all", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.findErr = errConn
		_, err := f.svc.GetAll(ctx)
		assert.ErrorIs(t, err, errConn)
	})

	t.Run("save", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.upsertErr = errConn
		_, err := f.svc.Save(ctx, model.ProviderOpenAI, "sk")
		assert.ErrorIs(t, err, errConn)
		assert.False(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repo.deleteErr = errConn
		_, err := f.svc.Delete(ctx, model.ProviderOpenAI)
		assert.ErrorIs(t, err, errConn)
	})

	t.Run("resolve does not fall back on infrastructure errors", func(t *testing.T) {
		f := newFixture(t, environment.Map{"OPENAI_API_KEY": "sk-env"})
		f.repo.findErr = errConn
		_, ok, err := f.svc.Resolve(ctx, model.ProviderOpenAI)
		assert.ErrorIs(t, err, errConn)
		assert.False(t, ok)
	})
}

func TestCredentialService_CipherFailureIsNotCorruption(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderAnthropic, "sk")
	require.NoError(t, err)

	f.svc.cipher = brokenCipher{}

	_, _, err = f.svc.Get(ctx, model.ProviderAnthropic)
	assert.ErrorIs(t, err, errEnclave)

	_, err = f.svc.GetAll(ctx)
	assert.ErrorIs(t, err, errEnclave)

	_, exists := f.repo.get(model.ProviderAnthropic)
	assert.True(t, exists, "an unavailable cipher must not purge good records")

	_, err = f.svc.Save(ctx, model.ProviderOpenAI, "sk")
	assert.ErrorIs(t, err, errEnclave)
}

func TestCredentialService_Delete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	deleted, err := f.svc.Delete(ctx, model.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a never-saved provider returns false")

	_, err = f.svc.Save(ctx, model.ProviderGoogle, "g-key")
	require.NoError(t, err)

	deleted, err = f.svc.Delete(ctx, model.ProviderGoogle)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = f.svc.Delete(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCredentialService_TouchLastUsed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	usedAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return usedAt }

	// No record: silent no-op.
	f.svc.TouchLastUsed(ctx, model.ProviderOpenAI)
	f.svc.TouchLastUsed(ctx, "unsupported")

	_, err := f.svc.Save(ctx, model.ProviderOpenAI, "sk")
	require.NoError(t, err)
	cred, _ := f.repo.get(model.ProviderOpenAI)
	assert.Nil(t, cred.LastUsedAt, "last_used_at is absent until first use")

	f.svc.TouchLastUsed(ctx, model.ProviderOpenAI)
	cred, _ = f.repo.get(model.ProviderOpenAI)
	require.NotNil(t, cred.LastUsedAt)
	assert.Equal(t, usedAt, *cred.LastUsedAt)

	f.repo.touchErr = errors.New("locked")
	assert.NotPanics(t, func() { f.svc.TouchLastUsed(ctx, model.ProviderOpenAI) })
	assert.Contains(t, f.logs.String(), "failed to update credential last used")
}

func TestCredentialService_ResolvePriority(t *testing.T) {
	ctx := context.Background()

	t.Run("stored beats environment", func(t *testing.T) {
		f := newFixture(t, environment.Map{"ANTHROPIC_API_KEY": "sk-from-env"})
		_, err := f.svc.Save(ctx, model.ProviderAnthropic, "sk-from-db")
		require.NoError(t, err)

		res, ok, err := f.svc.Resolve(ctx, model.ProviderAnthropic)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "sk-from-db", res.Value)
		assert.Equal(t, model.SourceStored, res.Source)

		cred, _ := f.repo.get(model.ProviderAnthropic)
		assert.NotNil(t, cred.LastUsedAt, "resolving a stored credential marks it used")
	})

	t.Run("environment when nothing stored", func(t *testing.T) {
		f := newFixture(t, environment.Map{"ANTHROPIC_API_KEY": "sk-from-env"})

		res, ok, err := f.svc.Resolve(ctx, model.ProviderAnthropic)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "sk-from-env", res.Value)
		assert.Equal(t, model.SourceEnvironment, res.Source)
	})

	t.Run("environment after corrupt record is quarantined", func(t *testing.T) {
		f := newFixture(t, environment.Map{"GOOGLE_API_KEY": "g-env"})
		_, err := f.svc.Save(ctx, model.ProviderGoogle, "g-db")
		require.NoError(t, err)
		f.repo.tamper(t, model.ProviderGoogle)

		res, ok, err := f.svc.Resolve(ctx, model.ProviderGoogle)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "g-env", res.Value)
		assert.Equal(t, model.SourceEnvironment, res.Source)
	})

	t.Run("other providers' variables are ignored", func(t *testing.T) {
		f := newFixture(t, environment.Map{"OPENAI_API_KEY": "sk-oai"})

		res, ok, err := f.svc.Resolve(ctx, model.ProviderQwen)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, model.SourceNone, res.Source)
		assert.Empty(t, res.Value)
	})

	t.Run("blank environment value is absent", func(t *testing.T) {
		f := newFixture(t, environment.Map{"QWEN_API_KEY": "  "})

		_, ok, err := f.svc.Resolve(ctx, model.ProviderQwen)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		f := newFixture(t, nil)
		_, _, err := f.svc.Resolve(ctx, "not_a_real_provider")
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestCredentialService_ResolveMetrics(t *testing.T) {
	f := newFixture(t, environment.Map{"OPENAI_API_KEY": "sk-env"})
	ctx := context.Background()

	_, err := f.svc.Save(ctx, model.ProviderAnthropic, "sk-db")
	require.NoError(t, err)

	_, _, err = f.svc.Resolve(ctx, model.ProviderAnthropic)
	require.NoError(t, err)
	_, _, err = f.svc.Resolve(ctx, model.ProviderOpenAI)
	require.NoError(t, err)
	_, _, err = f.svc.Resolve(ctx, model.ProviderGoogle)
	require.NoError(t, err)

	assert.Equal(t, 1, f.metrics.resolved[model.SourceStored])
	assert.Equal(t, 1, f.metrics.resolved[model.SourceEnvironment])
	assert.Equal(t, 1, f.metrics.resolved[model.SourceNone])
}

func TestCredentialService_ConcurrentSavesKeepOneRecordPerProvider(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for range writers {
		go func() {
			defer wg.Done()
			for _, p := range model.SupportedProviders() {
				_, err := f.svc.Save(ctx, p, "value-"+string(p))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	all, err := f.svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(model.SupportedProviders()))
	for p, v := range all {
		assert.Equal(t, "value-"+string(p), v)
	}
}

func TestNewCredentialService_NilMetricsAndLogger(t *testing.T) {
	svc := NewCredentialService(newMemRepo(), newTestCipher(t), environment.Map{}, nil, nil)

	_, err := svc.Save(context.Background(), model.ProviderQwen, "q")
	require.NoError(t, err)
	_, _, err = svc.Resolve(context.Background(), model.ProviderQwen)
	require.NoError(t, err)
}
