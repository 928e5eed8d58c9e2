// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/lidahealth/lida/internal/domain"
)

// ErrIdentifierTaken is returned when registering an identifier that already
// has an account.
var ErrIdentifierTaken = errors.New("identifier already registered")

// UserRepository persists server-side accounts.
type UserRepository interface {
	// CreateUser inserts a new account. Returns ErrIdentifierTaken when the
	// identifier already exists.
	CreateUser(ctx context.Context, user *domain.User) error

	// UserByIdentifier retrieves an account, or nil when absent.
	UserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
}

// CredentialStore persists the client's opaque credential token, keyed by
// session.
type CredentialStore interface {
	// SaveCredential stores or replaces the token for a session.
	SaveCredential(ctx context.Context, sessionID, token string) error

	// Credential returns the token for a session, or "" when absent.
	Credential(ctx context.Context, sessionID string) (string, error)
}

// Repository is the full persistence surface backed by one database.
type Repository interface {
	UserRepository
	CredentialStore

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
