// Package persistence stores the city snapshot in SQLite and in compressed
// snapshot files.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/tilecity/internal/engine"
)

// DB wraps a SQLite connection holding the flat city document.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type snapshotRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Save replaces the stored document. It implements engine.Persister.
func (db *DB) Save(doc engine.Document) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshot"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.Preparex("INSERT INTO snapshot (key, value) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, raw := range doc {
		if _, err := stmt.Exec(key, string(raw)); err != nil {
			return fmt.Errorf("insert %s: %w", key, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		"saved_at", strconv.FormatInt(time.Now().Unix(), 10),
	); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	return tx.Commit()
}

// Load returns the stored document. An empty database yields an empty document.
func (db *DB) Load() (engine.Document, error) {
	var rows []snapshotRow
	if err := db.conn.Select(&rows, "SELECT key, value FROM snapshot"); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	doc := make(engine.Document, len(rows))
	for _, r := range rows {
		doc[r.Key] = []byte(r.Value)
	}
	slog.Debug("snapshot loaded", "keys", len(doc))
	return doc, nil
}

// HasSnapshot reports whether a document has ever been saved.
func (db *DB) HasSnapshot() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM snapshot"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes the stored document and its save time.
func (db *DB) Clear() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshot"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM city_meta WHERE key = 'saved_at'"); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in city metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SavedAt returns when the document was last saved, or the zero time.
func (db *DB) SavedAt() (time.Time, error) {
	v, err := db.GetMeta("saved_at")
	if err != nil || v == "" {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse saved_at: %w", err)
	}
	return time.Unix(sec, 0), nil
}
