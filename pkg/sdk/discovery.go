package sdk

import (
	"context"
	"log"

	"github.com/celerix-dev/celerix-mint/internal/backend"
	"github.com/celerix-dev/celerix-mint/internal/config"
	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/internal/service"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

// New returns a remote client when cfg.StoreAddr is set and reachable, and
// otherwise an embedded ledger over the configured backend. Callers use the
// result the same way in both modes.
func New(ctx context.Context, cfg config.Config) (Ledger, error) {
	if cfg.StoreAddr != "" {
		client, err := Connect(cfg.StoreAddr, cfg.DisableTLS)
		if err == nil {
			return client, nil
		}
		log.Printf("[sdk] remote %s unavailable, using embedded mode: %v", cfg.StoreAddr, err)
	}

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEmbedded(store, service.Options{
		MintToken:   ledger.Identity(cfg.MintToken),
		GrantAmount: cfg.GrantAmount,
	}), nil
}

// Embedded runs the ledger in-process over store.
type Embedded struct {
	*service.Ledger
	store engine.Store
}

var _ Ledger = (*Embedded)(nil)

// NewEmbedded wraps store in a local ledger. Closing it closes store.
func NewEmbedded(store engine.Store, opts service.Options) *Embedded {
	return &Embedded{Ledger: service.New(store, opts), store: store}
}

func (e *Embedded) Close() error {
	return e.store.Close()
}
