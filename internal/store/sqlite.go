package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lidahealth/lida/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL UNIQUE,
		secret_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS credentials (
		session_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, identifier, secret_hash, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Identifier, user.SecretHash, user.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrIdentifierTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByIdentifier retrieves an account by identifier.
func (s *SQLiteStore) UserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	query := `SELECT id, identifier, secret_hash, created_at FROM users WHERE identifier = ?`

	row := s.db.QueryRowContext(ctx, query, identifier)

	var user domain.User
	var createdAt int64
	err := row.Scan(&user.ID, &user.Identifier, &user.SecretHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

// SaveCredential stores or replaces the token for a session.
func (s *SQLiteStore) SaveCredential(ctx context.Context, sessionID, token string) error {
	query := `
	INSERT INTO credentials (session_id, token, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		token = excluded.token,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, sessionID, token, time.Now().Unix()); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Credential returns the token for a session, or "" when none is stored.
func (s *SQLiteStore) Credential(ctx context.Context, sessionID string) (string, error) {
	query := `SELECT token FROM credentials WHERE session_id = ?`

	var token string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan credential row: %w", err)
	}
	return token, nil
}

// isUniqueConstraintError checks for SQLite's unique-constraint violation,
// which modernc.org/sqlite reports only through the error text.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
