// Package identity links chat users to their encrypted portal sessions and
// API tokens.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bdobrica/yellow/internal/yellow/portal"
	"github.com/bdobrica/yellow/internal/yellow/store"
)

// ErrNotFound is returned when no identity matches an alias or token.
var ErrNotFound = errors.New("identity not found")

// Identity is a chat user with a usable portal session.
type Identity struct {
	// Alias is the user's chat ID, e.g. a Matrix user ID.
	Alias   string
	Token   string
	Session portal.Session
}

// Records is the persistence the identity store needs.
type Records interface {
	UpsertIdentity(ctx context.Context, rec *store.IdentityRecord) error
	IdentityByAlias(ctx context.Context, alias string) (*store.IdentityRecord, error)
	IdentityByToken(ctx context.Context, token string) (*store.IdentityRecord, error)
	DeleteIdentity(ctx context.Context, alias string) error
}

// Store seals sessions before they reach Records.
type Store struct {
	records Records
	sealer  *Sealer
}

// NewStore creates a Store sealing sessions with key.
func NewStore(records Records, key []byte) (*Store, error) {
	sealer, err := NewSealer(key)
	if err != nil {
		return nil, err
	}
	return &Store{records: records, sealer: sealer}, nil
}

// NewToken returns a random 32 character hex API token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Import stores sess for alias, replacing any earlier session, and returns a
// fresh API token.
func (s *Store) Import(ctx context.Context, alias string, sess portal.Session) (string, error) {
	if alias == "" {
		return "", errors.New("identity: empty alias")
	}
	plain, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("identity: encode session: %w", err)
	}
	sealed, err := s.sealer.Seal(alias, plain)
	if err != nil {
		return "", fmt.Errorf("identity: seal session: %w", err)
	}

	token := NewToken()
	if err := s.records.UpsertIdentity(ctx, &store.IdentityRecord{Alias: alias, Token: token, Session: sealed}); err != nil {
		return "", err
	}
	return token, nil
}

// ByAlias returns the identity of a chat user.
func (s *Store) ByAlias(ctx context.Context, alias string) (*Identity, error) {
	rec, err := s.records.IdentityByAlias(ctx, alias)
	return s.open(rec, err)
}

// ByToken returns the identity owning an API token.
func (s *Store) ByToken(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	rec, err := s.records.IdentityByToken(ctx, token)
	return s.open(rec, err)
}

// Delete forgets alias and its session.
func (s *Store) Delete(ctx context.Context, alias string) error {
	err := s.records.DeleteIdentity(ctx, alias)
	if errors.Is(err, store.ErrIdentityNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) open(rec *store.IdentityRecord, err error) (*Identity, error) {
	if errors.Is(err, store.ErrIdentityNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	plain, err := s.sealer.Open(rec.Alias, rec.Session)
	if err != nil {
		return nil, fmt.Errorf("identity: open session of %s: %w", rec.Alias, err)
	}
	var sess portal.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, fmt.Errorf("identity: decode session of %s: %w", rec.Alias, err)
	}
	return &Identity{Alias: rec.Alias, Token: rec.Token, Session: sess}, nil
}
