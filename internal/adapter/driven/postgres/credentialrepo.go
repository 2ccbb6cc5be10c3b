package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo stores encrypted credentials in PostgreSQL.
type CredentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo creates a CredentialRepo over an open connection pool.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, provider, ciphertext, created_at, updated_at, last_used_at`

// Upsert inserts cred or updates the existing row for cred.Provider in one statement.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	const query = `INSERT INTO credentials (id, provider, ciphertext, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + credentialColumns

	row := r.db.QueryRowContext(ctx, query,
		cred.ID,
		string(cred.Provider),
		cred.Ciphertext,
		cred.CreatedAt.UTC(),
		cred.UpdatedAt.UTC(),
	)

	saved, err := scanCredential(row)
	if err != nil {
		return model.Credential{}, fmt.Errorf("upsert credential %q: %w", cred.Provider, err)
	}
	return saved, nil
}

// FindByProvider returns the record for provider, or (nil, nil) if none exists.
func (r *CredentialRepo) FindByProvider(ctx context.Context, provider model.Provider) (*model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE provider = $1`

	cred, err := scanCredential(r.db.QueryRowContext(ctx, query, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", provider, err)
	}
	return &cred, nil
}

// FindAll returns all stored records ordered by provider.
func (r *CredentialRepo) FindAll(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials ORDER BY provider`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// DeleteByProvider removes the record for provider and reports whether one existed.
func (r *CredentialRepo) DeleteByProvider(ctx context.Context, provider model.Provider) (bool, error) {
	const query = `DELETE FROM credentials WHERE provider = $1`

	result, err := r.db.ExecContext(ctx, query, string(provider))
	if err != nil {
		return false, fmt.Errorf("delete credential %q: %w", provider, err)
	}
	return affected(result)
}

// DeleteCorrupt removes the record for provider only while it still holds ciphertext.
func (r *CredentialRepo) DeleteCorrupt(ctx context.Context, provider model.Provider, ciphertext string) (bool, error) {
	const query = `DELETE FROM credentials WHERE provider = $1 AND ciphertext = $2`

	result, err := r.db.ExecContext(ctx, query, string(provider), ciphertext)
	if err != nil {
		return false, fmt.Errorf("delete corrupt credential %q: %w", provider, err)
	}
	return affected(result)
}

// TouchLastUsed sets last_used_at for provider and reports whether a row was updated.
func (r *CredentialRepo) TouchLastUsed(ctx context.Context, provider model.Provider, at time.Time) (bool, error) {
	const query = `UPDATE credentials SET last_used_at = $1 WHERE provider = $2`

	result, err := r.db.ExecContext(ctx, query, at.UTC(), string(provider))
	if err != nil {
		return false, fmt.Errorf("touch credential %q: %w", provider, err)
	}
	return affected(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (model.Credential, error) {
	var (
		cred       model.Credential
		provider   string
		lastUsedAt sql.NullTime
	)

	if err := s.Scan(&cred.ID, &provider, &cred.Ciphertext, &cred.CreatedAt, &cred.UpdatedAt, &lastUsedAt); err != nil {
		return model.Credential{}, err
	}
	cred.Provider = model.Provider(provider)
	cred.CreatedAt = cred.CreatedAt.UTC()
	cred.UpdatedAt = cred.UpdatedAt.UTC()
	if lastUsedAt.Valid {
		t := lastUsedAt.Time.UTC()
		cred.LastUsedAt = &t
	}

	return cred, nil
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows > 0, nil
}
