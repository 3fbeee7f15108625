// Package sqlite provides a SQLite-backed record store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists ledger records in SQLite. Each Update is one SQL transaction.
type Store struct {
	sqlDB   *sql.DB
	writeMu sync.Mutex
}

var _ engine.Store = (*Store)(nil)

// Open opens a SQLite record store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type sqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) Get(kind engine.Kind, id string) (any, error) {
	var body string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT body FROM records WHERE kind = ? AND identity = ?`,
		string(kind), id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", kind, id, err)
	}
	return json.RawMessage(body), nil
}

func (t *sqlTx) Put(kind engine.Kind, id string, val any) error {
	if t.readOnly {
		return engine.ErrReadOnly
	}
	body, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO records (kind, identity, body, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(kind, identity) DO UPDATE SET
		   body = excluded.body,
		   updated_at = excluded.updated_at`,
		string(kind), id, string(body), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", kind, id, err)
	}
	return nil
}

// View runs fn inside a read transaction.
func (s *Store) View(ctx context.Context, fn func(tx engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{ctx: ctx, tx: tx, readOnly: true})
}

// Update runs fn inside a write transaction and commits only if fn succeeds.
// Writers are serialized in-process so read-modify-write never races.
func (s *Store) Update(ctx context.Context, fn func(tx engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *Store) Identities(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT identity FROM records ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Kinds(ctx context.Context, id string) ([]engine.Kind, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT kind FROM records WHERE identity = ? ORDER BY kind`, id)
	if err != nil {
		return nil, fmt.Errorf("list kinds: %w", err)
	}
	defer rows.Close()

	var kinds []engine.Kind
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		kinds = append(kinds, engine.Kind(kind))
	}
	return kinds, rows.Err()
}

func (s *Store) Dump(ctx context.Context, kind engine.Kind) (map[string]any, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT identity, body FROM records WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", kind, err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out[id] = json.RawMessage(body)
	}
	return out, rows.Err()
}
