package translate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// StoredEntry is one durable cache row.
type StoredEntry struct {
	Source     string
	Translated string
}

// Store is the durable backend behind the in-memory cache. Load
// returns a language partition in insertion (FIFO) order.
type Store interface {
	Load(lang string) ([]StoredEntry, error)
	Put(lang, source, translated string) error
	Delete(lang, source string) error
	Close() error
}

// SQLiteStore persists translations in an embedded sqlite database,
// one logical partition per language. The autoincrement id preserves
// insertion order across restarts; an upsert keeps the original id so
// overwrites do not refresh an entry's age.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS translations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	lang       TEXT NOT NULL,
	source     TEXT NOT NULL,
	translated TEXT NOT NULL,
	UNIQUE (lang, source)
);
CREATE INDEX IF NOT EXISTS idx_translations_lang ON translations (lang, id);
`

// OpenSQLiteStore opens (or creates) the cache database at path.
func OpenSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening translation cache store", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer keeps sqlite happy under concurrent per-language stores.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Load(lang string) ([]StoredEntry, error) {
	rows, err := s.db.Query(
		`SELECT source, translated FROM translations WHERE lang = ? ORDER BY id`, lang)
	if err != nil {
		return nil, fmt.Errorf("load partition %q: %w", lang, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn("translate.store.rows_close_error", "error", cerr)
		}
	}()

	var out []StoredEntry
	for rows.Next() {
		var e StoredEntry
		if err := rows.Scan(&e.Source, &e.Translated); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Put(lang, source, translated string) error {
	_, err := s.db.Exec(
		`INSERT INTO translations (lang, source, translated) VALUES (?, ?, ?)
		 ON CONFLICT (lang, source) DO UPDATE SET translated = excluded.translated`,
		lang, source, translated)
	return err
}

func (s *SQLiteStore) Delete(lang, source string) error {
	_, err := s.db.Exec(`DELETE FROM translations WHERE lang = ? AND source = ?`, lang, source)
	return err
}

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing translation cache store")
	return s.db.Close()
}
