// Package mint applies grants to the underlying token resource: the mint
// itself (supply, decimals, authority) and each holder's holding.
//
// Everything happens inside the caller's store transaction, so a grant and
// the rate-limiter record that allowed it commit or roll back together.
package mint

import (
	"fmt"

	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

// Resource is the authoritative state of one token.
type Resource struct {
	TokenID         ledger.Identity `json:"token_id"`
	Decimals        uint8           `json:"decimals"`
	MintAuthority   ledger.Identity `json:"mint_authority"`
	FreezeAuthority ledger.Identity `json:"freeze_authority"`
	Supply          uint64          `json:"supply"`
}

// Executor performs a MintAction against a token inside tx.
type Executor interface {
	Execute(tx engine.Tx, token ledger.Identity, action ledger.MintAction, grantID string) error
}

// StoreExecutor keeps mint resources and holdings in the record store.
type StoreExecutor struct{}

var _ Executor = StoreExecutor{}

// InitializeMint creates the mint resource for token with authority as both
// mint and freeze authority.
func InitializeMint(tx engine.Tx, token ledger.Identity, decimals uint8, authority ledger.Identity) (Resource, error) {
	_, found, err := engine.Load[Resource](tx, engine.KindMint, string(token))
	if err != nil {
		return Resource{}, fmt.Errorf("load mint %s: %w", token, err)
	}
	if found {
		return Resource{}, fmt.Errorf("mint %s: %w", token, ledger.ErrAlreadyExists)
	}
	res := Resource{
		TokenID:         token,
		Decimals:        decimals,
		MintAuthority:   authority,
		FreezeAuthority: authority,
	}
	if err := tx.Put(engine.KindMint, string(token), res); err != nil {
		return Resource{}, err
	}
	return res, nil
}

// Execute credits action.Amount to the holder and grows the mint supply.
// Both additions are checked; on overflow nothing is written.
func (StoreExecutor) Execute(tx engine.Tx, token ledger.Identity, action ledger.MintAction, grantID string) error {
	res, found, err := engine.Load[Resource](tx, engine.KindMint, string(token))
	if err != nil {
		return fmt.Errorf("load mint %s: %w", token, err)
	}
	if !found {
		return fmt.Errorf("mint %s: %w", token, ledger.ErrNotFound)
	}

	holding, _, err := GetHolding(tx, token, action.To)
	if err != nil {
		return err
	}

	supply, err := ledger.CheckedAdd(res.Supply, action.Amount)
	if err != nil {
		return fmt.Errorf("supply of %s: %w", token, err)
	}
	amount, err := ledger.CheckedAdd(holding.Amount, action.Amount)
	if err != nil {
		return fmt.Errorf("holding of %s in %s: %w", action.To, token, err)
	}

	res.Supply = supply
	holding.Amount = amount
	holding.LastGrantID = grantID

	if err := tx.Put(engine.KindMint, string(token), res); err != nil {
		return err
	}
	return tx.Put(engine.HoldingKind(string(token)), string(action.To), holding)
}

// GetHolding returns a holder's holding of token, zero-valued if none exists yet.
func GetHolding(tx engine.Tx, token, holder ledger.Identity) (ledger.Holding, bool, error) {
	holding, found, err := engine.Load[ledger.Holding](tx, engine.HoldingKind(string(token)), string(holder))
	if err != nil {
		return ledger.Holding{}, false, fmt.Errorf("load holding of %s in %s: %w", holder, token, err)
	}
	if !found {
		holding = ledger.Holding{Holder: holder, TokenID: token}
	}
	return holding, found, nil
}
