package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteStorage struct {
	db *sql.DB
}

type sqliteBucket struct {
	name string
	db   *sql.DB
}

// NewSQLiteStorage opens (or creates) the storage in the given db file.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStorage(filename string) (*SQLiteStorage, error) {
	if filename == "" {
		filename = ":memory:"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writes, and keeps an in-memory db alive
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			seq INTEGER NOT NULL,
			stored_at INTEGER,
			bytes BLOB,
			PRIMARY KEY (bucket, key)
		)`,
		"CREATE INDEX IF NOT EXISTS entries_seq_idx ON entries (bucket, seq)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not initialize cache db: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Open(name string) (Bucket, error) {
	if err := ensureBucket(s.db, name); err != nil {
		return nil, err
	}
	return sqliteBucket{name: name, db: s.db}, nil
}

func (s *SQLiteStorage) Has(name string) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM buckets WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) Delete(name string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	result, err := tx.Exec("DELETE FROM buckets WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE bucket = ?", name); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *SQLiteStorage) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM buckets ORDER BY created_at, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func ensureBucket(db execer, name string) error {
	_, err := db.Exec("INSERT OR IGNORE INTO buckets (name, created_at) VALUES (?, ?)", name, time.Now().UnixNano())
	return err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (b sqliteBucket) Name() string {
	return b.name
}

func (b sqliteBucket) Get(key string) (CacheEntry, bool, error) {
	entry := CacheEntry{Key: key}
	var storedAt int64
	err := b.db.QueryRow("SELECT stored_at, bytes FROM entries WHERE bucket = ? AND key = ?", b.name, key).
		Scan(&storedAt, &entry.Bytes)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.StoredAt = time.UnixMilli(storedAt)
	return entry, true, nil
}

func (b sqliteBucket) Put(entry CacheEntry) error {
	return b.PutAll([]CacheEntry{entry})
}

func (b sqliteBucket) PutAll(entries []CacheEntry) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ensureBucket(tx, b.name); err != nil {
		return err
	}
	for _, entry := range entries {
		// keep the original position of replaced entries
		_, err := tx.Exec(`INSERT INTO entries (bucket, key, seq, stored_at, bytes)
			VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE bucket = ?), ?, ?)
			ON CONFLICT (bucket, key) DO UPDATE SET stored_at = excluded.stored_at, bytes = excluded.bytes`,
			b.name, entry.Key, b.name, entry.StoredAt.UnixMilli(), entry.Bytes)
		if err != nil {
			return fmt.Errorf("could not write %s: %w", entry.Key, err)
		}
	}
	return tx.Commit()
}

func (b sqliteBucket) Delete(key string) (bool, error) {
	result, err := b.db.Exec("DELETE FROM entries WHERE bucket = ? AND key = ?", b.name, key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (b sqliteBucket) Keys() ([]string, error) {
	rows, err := b.db.Query("SELECT key FROM entries WHERE bucket = ? ORDER BY seq", b.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
