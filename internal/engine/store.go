// Package engine defines the record store used by the ledger and provides the
// in-memory implementation with JSON-file persistence.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

var (
	// ErrRecordNotFound is returned when no record exists for a kind and identity.
	ErrRecordNotFound = fmt.Errorf("engine: %w", ledger.ErrNotFound)
	// ErrReadOnly is returned when a View transaction tries to write.
	ErrReadOnly = errors.New("engine: read-only transaction")
	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("engine: store closed")
)

// Kind names a record family. Records are keyed by (kind, identity).
type Kind string

const (
	KindProfile   Kind = "profile"
	KindToken     Kind = "token"
	KindMint      Kind = "mint"
	KindDailyMint Kind = "daily-mint"
)

// DailyMintKind is the kind of the rate-limiter records of token's daily program.
func DailyMintKind(token string) Kind {
	return KindDailyMint + Kind("."+token)
}

// HoldingKind is the kind under which holders' balances of token are kept.
func HoldingKind(token string) Kind {
	return Kind("holding." + token)
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	// Get returns the record stored under kind and id, or ErrRecordNotFound.
	Get(kind Kind, id string) (any, error)
	// Put stages a write. It becomes visible to other transactions only on commit.
	Put(kind Kind, id string, val any) error
}

// Store is the contract every backend satisfies.
// Update applies all writes of fn or none of them; writers are serialized.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Identities lists every identity holding at least one record.
	Identities(ctx context.Context) ([]string, error)
	// Kinds lists the record kinds held by one identity.
	Kinds(ctx context.Context, id string) ([]Kind, error)
	// Dump returns every record of a kind, keyed by identity.
	Dump(ctx context.Context, kind Kind) (map[string]any, error)

	Close() error
}
