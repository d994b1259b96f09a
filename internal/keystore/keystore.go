package keystore

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrKeyNotFound is returned when revoking an id that does not exist.
var ErrKeyNotFound = errors.New("api key not found")

const secretBytes = 24

// APIKey is an issued credential. Key is the secret and must only be
// returned in full once, at creation time; use Masked for display.
type APIKey struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Masked returns a copy with the secret reduced to bullets plus the last
// four characters.
func (k APIKey) Masked() APIKey {
	masked := k
	if len(k.Key) > 4 {
		masked.Key = strings.Repeat("•", 12) + k.Key[len(k.Key)-4:]
	} else {
		masked.Key = strings.Repeat("•", 12)
	}
	return masked
}

// Store persists API keys in SQLite and keeps the active set in memory so
// authorization never touches the database on the hot path. The cache is
// loaded at startup and invalidated on revocation.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	secrets map[string]string // secret -> key id
}

// Open opens (creating if needed) the key database at path and loads the
// active key set.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open key database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping key database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init key schema: %w", err)
	}

	s := &Store{db: db, secrets: make(map[string]string)}
	if err := s.reload(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) reload(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, key FROM api_keys`)
	if err != nil {
		return fmt.Errorf("load api keys: %w", err)
	}
	defer rows.Close()

	secrets := make(map[string]string)
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return fmt.Errorf("scan api key: %w", err)
		}
		secrets[key] = id
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load api keys: %w", err)
	}

	s.mu.Lock()
	s.secrets = secrets
	s.mu.Unlock()
	return nil
}

// Create issues a new key. The returned APIKey carries the full secret;
// this is the only time it is available unmasked.
func (s *Store) Create(ctx context.Context, description string) (APIKey, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return APIKey{}, fmt.Errorf("generate api key: %w", err)
	}

	key := APIKey{
		ID:          uuid.New().String(),
		Key:         hex.EncodeToString(buf),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key, description, created_at) VALUES (?, ?, ?, ?)`,
		key.ID, key.Key, key.Description, key.CreatedAt,
	)
	if err != nil {
		return APIKey{}, fmt.Errorf("insert api key: %w", err)
	}

	s.mu.Lock()
	s.secrets[key.Key] = key.ID
	s.mu.Unlock()

	return key, nil
}

// List returns all issued keys, oldest first, with secrets intact; callers
// expose them masked.
func (s *Store) List(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, description, created_at FROM api_keys ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Key, &k.Description, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// Revoke deletes the key with the given id and invalidates it immediately.
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}

	s.mu.Lock()
	for secret, keyID := range s.secrets {
		if keyID == id {
			delete(s.secrets, secret)
		}
	}
	s.mu.Unlock()
	return nil
}

// Lookup resolves a presented secret to its key id. Comparison is
// constant-time per candidate to avoid timing side channels.
func (s *Store) Lookup(candidate string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for secret, id := range s.secrets {
		if len(secret) == len(candidate) &&
			subtle.ConstantTimeCompare([]byte(secret), []byte(candidate)) == 1 {
			return id, true
		}
	}
	return "", false
}

// Active reports whether the given key id is still valid.
func (s *Store) Active(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, keyID := range s.secrets {
		if keyID == id {
			return true
		}
	}
	return false
}
