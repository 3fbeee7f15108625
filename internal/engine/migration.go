package engine

import (
	"context"
	"fmt"
)

// Migrate copies every record from src into dst, one transaction per identity.
// This works for:
// - JSON snapshots -> SQLite (the "Upgrade")
// - SQLite -> JSON snapshots (the "Backup")
func Migrate(ctx context.Context, src, dst Store) (int, error) {
	ids, err := src.Identities(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list identities: %w", err)
	}

	copied := 0
	for _, id := range ids {
		kinds, err := src.Kinds(ctx, id)
		if err != nil {
			return copied, fmt.Errorf("failed to list kinds for %s: %w", id, err)
		}

		records := make(map[Kind]any, len(kinds))
		err = src.View(ctx, func(tx Tx) error {
			for _, kind := range kinds {
				val, err := tx.Get(kind, id)
				if err != nil {
					return fmt.Errorf("failed to read %s/%s: %w", kind, id, err)
				}
				records[kind] = val
			}
			return nil
		})
		if err != nil {
			return copied, err
		}

		err = dst.Update(ctx, func(tx Tx) error {
			for kind, val := range records {
				if err := tx.Put(kind, id, val); err != nil {
					return fmt.Errorf("failed to write %s/%s: %w", kind, id, err)
				}
			}
			return nil
		})
		if err != nil {
			return copied, err
		}
		copied += len(records)
	}
	return copied, nil
}
