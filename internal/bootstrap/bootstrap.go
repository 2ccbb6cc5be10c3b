// Package bootstrap wires configuration, persistence, encryption and the
// credential service for the server and the admin CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/credvault/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/credvault/internal/adapter/driven/environment"
	"github.com/ericfisherdev/credvault/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/credvault/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/credvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/config"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// ErrEphemeralKeyForbidden is returned when no usable encryption key is
// configured in an environment that requires one.
var ErrEphemeralKeyForbidden = errors.New("a configured encryption key is required in production (set CREDVAULT_ENCRYPTION_KEY, or CREDVAULT_ALLOW_EPHEMERAL_KEY=true to override)")

// App holds the wired components. Close releases the database.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Credentials   *application.CredentialService
	Repository    driven.CredentialRepository
	Cipher        *aesgcm.Cipher
	KeyOutcome    aesgcm.KeyOutcome
	Metrics       *metrics.Prometheus
	Backend       string
	SchemaVersion uint

	store  store
	closer func() error
}

// store is the database handle behind the repository.
type store interface {
	Ping(ctx context.Context) error
}

// pingFunc adapts a ping function to store.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// New builds the application from cfg: it loads the master key and applies
// the ephemeral-key policy, opens the configured database, runs migrations
// and constructs the credential service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cipher, outcome := aesgcm.New(cfg.EncryptionKey)
	if outcome.Ephemeral() {
		if cfg.EphemeralKeyFatal() {
			return nil, fmt.Errorf("%w: %v", ErrEphemeralKeyForbidden, outcome.Reason)
		}
		logger.Warn("using ephemeral encryption key; stored credentials will be unreadable after restart",
			"reason", outcome.Reason,
			"environment", cfg.Environment,
		)
	} else {
		logger.Info("encryption key loaded", "origin", outcome.Origin)
	}

	m := metrics.New()
	m.SetEphemeralKey(outcome.Ephemeral())

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Cipher:     cipher,
		KeyOutcome: outcome,
		Metrics:    m,
	}

	repo, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}

	app.Repository = repo
	app.Credentials = application.NewCredentialService(repo, cipher, environment.OS{}, m, logger)
	return app, nil
}

func (a *App) openStore(ctx context.Context) (driven.CredentialRepository, error) {
	if a.Config.UsePostgres() {
		db, err := postgres.Open(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		version, err := postgres.RunMigrations(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.Logger.Info("database opened", "backend", "postgres", "schema_version", version)

		a.SchemaVersion = version
		a.Backend = "postgres"
		a.store = pingFunc(db.PingContext)
		a.closer = db.Close
		return postgres.NewCredentialRepo(db), nil
	}

	db, err := sqliteadapter.NewDB(ctx, a.Config.DBPath)
	if err != nil {
		return nil, err
	}
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.Logger.Info("database opened", "backend", "sqlite", "path", db.Path(), "schema_version", version)

	a.SchemaVersion = version
	a.Backend = "sqlite"
	a.store = db
	a.closer = db.Close
	return sqliteadapter.NewCredentialRepo(db), nil
}

// Ping verifies the database is reachable.
func (a *App) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Close releases the database connections.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
