package sqlite

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

// CredentialRepo is the SQLite implementation of the CredentialRepository port.
// It stores ciphertext as handed to it; encryption happens in the caller.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, provider, ciphertext, created_at, updated_at, last_used_at`

// Upsert inserts cred, or replaces the ciphertext and updated_at of the
// existing row for cred.Provider. The unique index on provider makes this a
// single atomic statement, so concurrent saves cannot create duplicates.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	const query = `INSERT INTO credentials (id, provider, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at
		RETURNING ` + credentialColumns

	row := r.db.Writer.QueryRowContext(ctx, query,
		cred.ID,
		string(cred.Provider),
		cred.Ciphertext,
		formatTime(cred.CreatedAt),
		formatTime(cred.UpdatedAt),
	)

	saved, err := scanCredential(row)
	if err != nil {
		return model.Credential{}, fmt.Errorf("upsert credential %q: %w", cred.Provider, err)
	}
	return saved, nil
}

// FindByProvider returns the record for provider, or (nil, nil) if none exists.
func (r *CredentialRepo) FindByProvider(ctx context.Context, provider model.Provider) (*model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE provider = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, string(provider)))
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

	rows, err := r.db.Reader.QueryContext(ctx, query)
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
	const query = `DELETE FROM credentials WHERE provider = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(provider))
	if err != nil {
		return false, fmt.Errorf("delete credential %q: %w", provider, err)
	}
	return affected(result)
}

// DeleteCorrupt removes the record for provider only while it still holds ciphertext.
func (r *CredentialRepo) DeleteCorrupt(ctx context.Context, provider model.Provider, ciphertext string) (bool, error) {
	const query = `DELETE FROM credentials WHERE provider = ? AND ciphertext = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(provider), ciphertext)
	if err != nil {
		return false, fmt.Errorf("delete corrupt credential %q: %w", provider, err)
	}
	return affected(result)
}

// TouchLastUsed sets last_used_at for provider and reports whether a row was updated.
func (r *CredentialRepo) TouchLastUsed(ctx context.Context, provider model.Provider, at time.Time) (bool, error) {
	const query = `UPDATE credentials SET last_used_at = ? WHERE provider = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), string(provider))
	if err != nil {
		return false, fmt.Errorf("touch credential %q: %w", provider, err)
	}
	return affected(result)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (model.Credential, error) {
	var (
		cred       model.Credential
		provider   string
		createdAt  string
		updatedAt  string
		lastUsedAt sql.NullString
	)

	if err := s.Scan(&cred.ID, &provider, &cred.Ciphertext, &createdAt, &updatedAt, &lastUsedAt); err != nil {
		return model.Credential{}, err
	}
	cred.Provider = model.Provider(provider)

	var err error
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastUsedAt.Valid {
		t, err := parseTime(lastUsedAt.String)
		if err != nil {
			return model.Credential{}, fmt.Errorf("parse last_used_at: %w", err)
		}
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
