package sdk

import (
	"context"
	"io"

	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

// --- Functional Interfaces (Interface Segregation) ---

// ProfileService manages profile records.
type ProfileService interface {
	CreateProfile(ctx context.Context, caller ledger.Identity, name string, age uint8) (ledger.ProfileRecord, error)
	UpdateProfile(ctx context.Context, caller, owner ledger.Identity, name string, age uint8) (ledger.ProfileRecord, error)
	AddBalance(ctx context.Context, caller, owner ledger.Identity, amount uint64) (ledger.ProfileRecord, error)
	GetProfile(ctx context.Context, owner ledger.Identity) (ledger.ProfileRecord, error)
	ListProfiles(ctx context.Context) ([]ledger.ProfileRecord, error)
}

// TokenService manages token descriptors.
type TokenService interface {
	CreateToken(ctx context.Context, authority ledger.Identity, params ledger.TokenParams) (ledger.TokenDescriptor, error)
	GetToken(ctx context.Context, tokenID ledger.Identity) (ledger.TokenDescriptor, error)
}

// IssuanceService runs the daily grant program.
type IssuanceService interface {
	RequestDailyMint(ctx context.Context, caller ledger.Identity) (ledger.Grant, error)
	Eligibility(ctx context.Context, holder ledger.Identity) (ledger.Eligibility, error)
	Holding(ctx context.Context, token, holder ledger.Identity) (ledger.Holding, error)
}

// --- Composite Interfaces ---

// LedgerService is every ledger operation, local or remote.
type LedgerService interface {
	ProfileService
	TokenService
	IssuanceService
}

// Ledger is a LedgerService that holds resources until closed.
type Ledger interface {
	LedgerService
	io.Closer
}

// ProfileParams is the mutable part of a profile on the wire.
type ProfileParams struct {
	Name string `json:"name"`
	Age  uint8  `json:"age"`
}
