// Package store provides the durable, shard- and event-partitioned event
// store: player registry, point readings, activity intervals, and the rank
// transition log, with atomic snapshot ingestion.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nijika-dev/trackstar/internal/domain/model"
	"github.com/nijika-dev/trackstar/internal/store/migrations"
	"github.com/nijika-dev/trackstar/pkg/logger"

	_ "modernc.org/sqlite"
)

// Default derivation parameters; override with options.
const (
	defaultTopN                = 10
	defaultInactivityThreshold = 20 * time.Minute
)

// Store is a SQLite-backed event store. All rows carry (shard, event)
// partition columns; shards never contend on application state.
type Store struct {
	db         *sql.DB
	topN       int
	inactivity time.Duration
	log        logger.Logger
}

// Open opens the store at path, creating the schema if needed.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: store path is required", ErrOpen)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrOpen, err)
	}
	// Serialize writers; SQLite allows only one write transaction at a time
	// and the shard pollers all funnel through this connection pool.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:         db,
		topN:       defaultTopN,
		inactivity: defaultInactivityThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %w", ErrOpen, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyMigrations executes embedded SQL migrations at most once per file.
func (s *Store) applyMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		var n int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, file).Scan(&n)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}

		content, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			file, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// EnsureEvent creates the event row if absent. Idempotent; an existing event
// is never modified.
func (s *Store) EnsureEvent(ctx context.Context, shard string, meta model.EventMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (shard, id, name, type, start_at, end_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (shard, id) DO NOTHING`,
		shard, meta.ID, meta.Name, string(meta.Type), meta.StartAt.Unix(), meta.EndAt.Unix())
	if err != nil {
		return fmt.Errorf("ensure event: %w", err)
	}
	return nil
}

// Event returns the stored metadata for an event id.
func (s *Store) Event(ctx context.Context, shard, eventID string) (model.EventMeta, error) {
	var (
		meta       model.EventMeta
		typ        string
		start, end int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, start_at, end_at FROM events
		WHERE shard = ? AND id = ?`, shard, eventID).
		Scan(&meta.ID, &meta.Name, &typ, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EventMeta{}, ErrNotFound
	}
	if err != nil {
		return model.EventMeta{}, fmt.Errorf("select event: %w", err)
	}
	meta.Type = model.EventType(typ)
	meta.StartAt = time.Unix(start, 0)
	meta.EndAt = time.Unix(end, 0)
	return meta, nil
}
