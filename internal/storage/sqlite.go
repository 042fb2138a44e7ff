package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend on a SQLite file with encrypted values.
// Several scopes can share one database file; each backend instance reads and
// writes only its own scope.
type SQLiteBackend struct {
	db            *sql.DB
	scope         string
	encryptionKey []byte
	mu            sync.RWMutex
	closed        bool
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend opens (creating if needed) the database at dbPath.
// The encryptionKey is used to encrypt/decrypt stored values.
func NewSQLiteBackend(dbPath, scope string, encryptionKey []byte) (*SQLiteBackend, error) {
	if len(encryptionKey) == 0 {
		return nil, fmt.Errorf("encryption key is required")
	}

	// WAL mode and busy timeout so a CLI and a long-running watcher can share the file
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b := &SQLiteBackend{
		db:            db,
		scope:         scope,
		encryptionKey: encryptionKey,
	}

	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Only takes effect once the file exists
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
	}

	return b, nil
}

func (b *SQLiteBackend) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS session_entries (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		encrypted_value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (scope, key)
	);
	`
	if _, err := b.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create session_entries table: %w", err)
	}
	return nil
}

// Get retrieves and decrypts a value.
func (b *SQLiteBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return "", false, ErrClosed
	}

	var encrypted string
	err := b.db.QueryRow(
		"SELECT encrypted_value FROM session_entries WHERE scope = ? AND key = ?",
		b.scope, key,
	).Scan(&encrypted)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", key, err)
	}

	plaintext, err := Decrypt(encrypted, b.encryptionKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt %s: %w", key, err)
	}

	return string(plaintext), true, nil
}

// Set encrypts and stores or replaces a value.
func (b *SQLiteBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	encrypted, err := Encrypt([]byte(value), b.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", key, err)
	}

	_, err = b.db.Exec(`
		INSERT INTO session_entries (scope, key, encrypted_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			updated_at = excluded.updated_at
	`, b.scope, key, encrypted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	return nil
}

// Remove deletes a value. Removing a missing key is not an error.
func (b *SQLiteBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	_, err := b.db.Exec("DELETE FROM session_entries WHERE scope = ? AND key = ?", b.scope, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.db.Close()
}
