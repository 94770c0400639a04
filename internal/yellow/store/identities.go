package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrIdentityNotFound is returned when no identity matches an alias or token.
var ErrIdentityNotFound = errors.New("identity not found")

// IdentityRecord is a stored identity. Session holds the sealed portal
// session; the store never sees it in clear text.
type IdentityRecord struct {
	Alias     string
	Token     string
	Session   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

const identityColumns = `alias, token, session, created_at, updated_at`

func scanIdentity(row *sql.Row, key string) (*IdentityRecord, error) {
	rec := &IdentityRecord{}
	err := row.Scan(&rec.Alias, &rec.Token, &rec.Session, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return rec, nil
}

// UpsertIdentity stores rec, replacing the token and session of an existing
// identity with the same alias.
func (s *Store) UpsertIdentity(ctx context.Context, rec *IdentityRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET
			token = excluded.token,
			session = excluded.session,
			updated_at = excluded.updated_at
	`, rec.Alias, rec.Token, rec.Session, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert identity %s: %w", rec.Alias, err)
	}
	return nil
}

// IdentityByAlias returns the identity stored for alias.
func (s *Store) IdentityByAlias(ctx context.Context, alias string) (*IdentityRecord, error) {
	return scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE alias = ?`, alias), alias)
}

// IdentityByToken returns the identity owning an API token.
func (s *Store) IdentityByToken(ctx context.Context, token string) (*IdentityRecord, error) {
	return scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE token = ?`, token), "token")
}

// DeleteIdentity removes the identity stored for alias.
func (s *Store) DeleteIdentity(ctx context.Context, alias string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE alias = ?`, alias)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrIdentityNotFound, alias)
	}
	return nil
}

// CountIdentities returns the number of stored identities.
func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count identities: %w", err)
	}
	return n, nil
}
