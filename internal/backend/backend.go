// Package backend opens the record store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/celerix-dev/celerix-mint/internal/config"
	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/internal/storage/sqlite"
)

// Open returns the configured store. For the memory backend, snapshots under
// cfg.DataDir are loaded first. When cfg.ImportDir is set, its snapshots are
// copied into the store before it is returned.
func Open(ctx context.Context, cfg config.Config) (engine.Store, error) {
	var store engine.Store
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		p, err := engine.NewPersistence(cfg.DataDir, cfg.SealingKey())
		if err != nil {
			return nil, err
		}
		data, err := p.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
		store = engine.NewMemStore(data, p)
	}

	if cfg.ImportDir != "" {
		n, err := importSnapshots(ctx, cfg.ImportDir, cfg.SealingKey(), store)
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Printf("[backend] imported %d records from %s", n, cfg.ImportDir)
	}
	return store, nil
}

func importSnapshots(ctx context.Context, dir string, key []byte, dst engine.Store) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("import dir: %w", err)
	}
	p, err := engine.NewPersistence(dir, key)
	if err != nil {
		return 0, err
	}
	data, err := p.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load import snapshots: %w", err)
	}
	src := engine.NewMemStore(data, nil)
	defer src.Close()

	n, err := engine.Migrate(ctx, src, dst)
	if err != nil {
		return n, fmt.Errorf("import: %w", err)
	}
	return n, nil
}
