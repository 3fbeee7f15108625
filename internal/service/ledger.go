// Package service runs the ledger transitions against a record store: it
// loads records, applies the pure logic from pkg/ledger and commits the
// result, together with any grant, in a single store transaction.
package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/celerix-dev/celerix-mint/internal/engine"
	"github.com/celerix-dev/celerix-mint/internal/mint"
	"github.com/celerix-dev/celerix-mint/internal/telemetry"
	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

// Options tune a Ledger. Zero values pick the defaults.
type Options struct {
	Clock       Clock
	Executor    mint.Executor
	MintToken   ledger.Identity
	GrantAmount uint64
	Logger      *log.Logger
	NewGrantID  func() string
}

// Ledger is the embedded implementation of every ledger operation.
type Ledger struct {
	store  engine.Store
	clock  Clock
	exec   mint.Executor
	token  ledger.Identity
	grant  uint64
	logger *log.Logger
	newID  func() string
	tracer trace.Tracer
}

// DefaultMintToken is the token of the daily program when none is configured.
const DefaultMintToken ledger.Identity = "celerix"

// New builds a Ledger over store.
func New(store engine.Store, opts Options) *Ledger {
	l := &Ledger{
		store:  store,
		clock:  opts.Clock,
		exec:   opts.Executor,
		token:  opts.MintToken,
		grant:  opts.GrantAmount,
		logger: opts.Logger,
		newID:  opts.NewGrantID,
		tracer: telemetry.Tracer(),
	}
	if l.clock == nil {
		l.clock = NewSystemClock()
	}
	if l.exec == nil {
		l.exec = mint.StoreExecutor{}
	}
	if l.token == "" {
		l.token = DefaultMintToken
	}
	if l.grant == 0 {
		l.grant = ledger.DefaultGrantAmount
	}
	if l.logger == nil {
		l.logger = log.New(os.Stderr, "[ledger] ", log.LstdFlags)
	}
	if l.newID == nil {
		l.newID = func() string { return uuid.NewString() }
	}
	return l
}

// MintToken returns the token granted by the daily program.
func (l *Ledger) MintToken() ledger.Identity { return l.token }

// GrantAmount returns the fixed daily grant.
func (l *Ledger) GrantAmount() uint64 { return l.grant }

func (l *Ledger) start(ctx context.Context, op string, caller ledger.Identity) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("ledger.caller", string(caller))))
}

// finish records the outcome on the span and wraps err with the operation name.
func (l *Ledger) finish(span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, ledger.Code(err))
	l.logger.Printf("%s rejected: %v", op, err)
	return fmt.Errorf("%s: %w", op, err)
}

func validIDs(ids ...ledger.Identity) error {
	for _, id := range ids {
		if err := ledger.ValidIdentity(id); err != nil {
			return err
		}
	}
	return nil
}

func loadProfile(tx engine.Tx, owner ledger.Identity) (ledger.ProfileRecord, error) {
	rec, found, err := engine.Load[ledger.ProfileRecord](tx, engine.KindProfile, string(owner))
	if err != nil {
		return rec, fmt.Errorf("load profile %s: %w", owner, err)
	}
	if !found {
		return rec, fmt.Errorf("profile %s: %w", owner, ledger.ErrNotFound)
	}
	return rec, nil
}

// CreateProfile creates the caller's profile.
func (l *Ledger) CreateProfile(ctx context.Context, caller ledger.Identity, name string, age uint8) (ledger.ProfileRecord, error) {
	ctx, span := l.start(ctx, "CreateProfile", caller)
	if err := validIDs(caller); err != nil {
		return ledger.ProfileRecord{}, l.finish(span, "create profile", err)
	}

	now := l.clock.Now()
	var rec ledger.ProfileRecord
	err := l.store.Update(ctx, func(tx engine.Tx) error {
		prior, found, err := engine.Load[ledger.ProfileRecord](tx, engine.KindProfile, string(caller))
		if err != nil {
			return fmt.Errorf("load profile %s: %w", caller, err)
		}
		var existing *ledger.ProfileRecord
		if found {
			existing = &prior
		}
		rec, err = ledger.CreateProfile(existing, caller, name, age, now)
		if err != nil {
			return err
		}
		return tx.Put(engine.KindProfile, string(caller), rec)
	})
	if err != nil {
		return ledger.ProfileRecord{}, l.finish(span, "create profile", err)
	}
	return rec, l.finish(span, "create profile", nil)
}

// UpdateProfile changes owner's name and age. caller must be owner.
func (l *Ledger) UpdateProfile(ctx context.Context, caller, owner ledger.Identity, name string, age uint8) (ledger.ProfileRecord, error) {
	ctx, span := l.start(ctx, "UpdateProfile", caller)
	if err := validIDs(caller, owner); err != nil {
		return ledger.ProfileRecord{}, l.finish(span, "update profile", err)
	}

	now := l.clock.Now()
	var rec ledger.ProfileRecord
	err := l.store.Update(ctx, func(tx engine.Tx) error {
		prior, err := loadProfile(tx, owner)
		if err != nil {
			return err
		}
		rec, err = ledger.UpdateProfile(prior, name, age, now, caller)
		if err != nil {
			return err
		}
		return tx.Put(engine.KindProfile, string(owner), rec)
	})
	if err != nil {
		return ledger.ProfileRecord{}, l.finish(span, "update profile", err)
	}
	return rec, l.finish(span, "update profile", nil)
}

// AddBalance credits amount to owner's profile balance. caller must be owner.
func (l *Ledger) AddBalance(ctx context.Context, caller, owner ledger.Identity, amount uint64) (ledger.ProfileRecord, error) {
	ctx, span := l.start(ctx, "AddBalance", caller)
	if err := validIDs(caller, owner); err != nil {
		return ledger.ProfileRecord{}, l.finish(span, "add balance", err)
	}

	now := l.clock.Now()
	var rec ledger.ProfileRecord
	err := l.store.Update(ctx, func(tx engine.Tx) error {
		prior, err := loadProfile(tx, owner)
		if err != nil {
			return err
		}
		rec, err = ledger.AddBalance(prior, amount, caller, now)
		if err != nil {
			return err
		}
		return tx.Put(engine.KindProfile, string(owner), rec)
	})
	if err != nil {
		return ledger.ProfileRecord{}, l.finish(span, "add balance", err)
	}
	return rec, l.finish(span, "add balance", nil)
}

// GetProfile returns owner's profile.
func (l *Ledger) GetProfile(ctx context.Context, owner ledger.Identity) (ledger.ProfileRecord, error) {
	if err := validIDs(owner); err != nil {
		return ledger.ProfileRecord{}, fmt.Errorf("get profile: %w", err)
	}
	var rec ledger.ProfileRecord
	err := l.store.View(ctx, func(tx engine.Tx) error {
		var err error
		rec, err = loadProfile(tx, owner)
		return err
	})
	if err != nil {
		return ledger.ProfileRecord{}, fmt.Errorf("get profile: %w", err)
	}
	return rec, nil
}

// ListProfiles returns every profile ordered by owner.
func (l *Ledger) ListProfiles(ctx context.Context) ([]ledger.ProfileRecord, error) {
	dump, err := l.store.Dump(ctx, engine.KindProfile)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	list := make([]ledger.ProfileRecord, 0, len(dump))
	for id, val := range dump {
		rec, err := engine.Decode[ledger.ProfileRecord](val)
		if err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", id, err)
		}
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OwnerID < list[j].OwnerID })
	return list, nil
}

// CreateToken records a token descriptor and initializes its mint resource,
// with authority as mint authority.
func (l *Ledger) CreateToken(ctx context.Context, authority ledger.Identity, params ledger.TokenParams) (ledger.TokenDescriptor, error) {
	ctx, span := l.start(ctx, "CreateToken", authority)
	if err := validIDs(authority, params.TokenID); err != nil {
		return ledger.TokenDescriptor{}, l.finish(span, "create token", err)
	}

	var desc ledger.TokenDescriptor
	err := l.store.Update(ctx, func(tx engine.Tx) error {
		_, found, err := engine.Load[ledger.TokenDescriptor](tx, engine.KindToken, string(params.TokenID))
		if err != nil {
			return fmt.Errorf("load token %s: %w", params.TokenID, err)
		}
		if found {
			return fmt.Errorf("token %s: %w", params.TokenID, ledger.ErrAlreadyExists)
		}
		desc, err = ledger.CreateDescriptor(params.TokenID, params.Name, params.Symbol, params.Description, params.Decimals, authority)
		if err != nil {
			return err
		}
		if _, err := mint.InitializeMint(tx, params.TokenID, params.Decimals, authority); err != nil {
			return err
		}
		return tx.Put(engine.KindToken, string(params.TokenID), desc)
	})
	if err != nil {
		return ledger.TokenDescriptor{}, l.finish(span, "create token", err)
	}
	l.logger.Printf("token %s (%s) created by %s", desc.TokenID, desc.Symbol, authority)
	return desc, l.finish(span, "create token", nil)
}

// GetToken returns the descriptor of tokenID.
func (l *Ledger) GetToken(ctx context.Context, tokenID ledger.Identity) (ledger.TokenDescriptor, error) {
	if err := validIDs(tokenID); err != nil {
		return ledger.TokenDescriptor{}, fmt.Errorf("get token: %w", err)
	}
	var desc ledger.TokenDescriptor
	err := l.store.View(ctx, func(tx engine.Tx) error {
		var (
			found bool
			err   error
		)
		desc, found, err = engine.Load[ledger.TokenDescriptor](tx, engine.KindToken, string(tokenID))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("token %s: %w", tokenID, ledger.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return ledger.TokenDescriptor{}, fmt.Errorf("get token: %w", err)
	}
	return desc, nil
}

// RequestDailyMint grants the daily amount of the program token to caller,
// at most once per day. The rate-limiter record, the holding, the mint supply
// and the descriptor supply mirror are committed in one transaction.
func (l *Ledger) RequestDailyMint(ctx context.Context, caller ledger.Identity) (ledger.Grant, error) {
	ctx, span := l.start(ctx, "RequestDailyMint", caller)
	if err := validIDs(caller); err != nil {
		return ledger.Grant{}, l.finish(span, "daily mint", err)
	}

	now := l.clock.Now()
	grantID := l.newID()
	kind := engine.DailyMintKind(string(l.token))

	var grant ledger.Grant
	err := l.store.Update(ctx, func(tx engine.Tx) error {
		desc, found, err := engine.Load[ledger.TokenDescriptor](tx, engine.KindToken, string(l.token))
		if err != nil {
			return fmt.Errorf("load token %s: %w", l.token, err)
		}
		if !found {
			return fmt.Errorf("daily mint token %s: %w", l.token, ledger.ErrNotFound)
		}

		prior, found, err := engine.Load[ledger.DailyIssuanceRecord](tx, kind, string(caller))
		if err != nil {
			return fmt.Errorf("load daily record %s: %w", caller, err)
		}
		var existing *ledger.DailyIssuanceRecord
		if found {
			existing = &prior
		}

		next, action, err := ledger.RequestDailyMint(existing, caller, now, l.grant)
		if err != nil {
			return err
		}
		if err := l.exec.Execute(tx, l.token, action, grantID); err != nil {
			return fmt.Errorf("execute grant: %w", err)
		}
		desc, err = ledger.RecordSupplyIncrease(desc, action.Amount)
		if err != nil {
			return err
		}
		if err := tx.Put(engine.KindToken, string(l.token), desc); err != nil {
			return err
		}
		if err := tx.Put(kind, string(caller), next); err != nil {
			return err
		}

		grant = ledger.Grant{
			ID:             grantID,
			TokenID:        l.token,
			Action:         action,
			Record:         next,
			NextEligibleAt: ledger.NextEligibleAt(&next, now),
		}
		return nil
	})
	if err != nil {
		return ledger.Grant{}, l.finish(span, "daily mint", err)
	}

	span.SetAttributes(attribute.Int64("ledger.day", int64(grant.Record.LastMintDay)))
	l.logger.Printf("granted %d %s to %s on day %d (grant %s)", grant.Action.Amount, l.token, caller, grant.Record.LastMintDay, grant.ID)
	return grant, l.finish(span, "daily mint", nil)
}

// Eligibility reports holder's daily-mint state without changing it.
func (l *Ledger) Eligibility(ctx context.Context, holder ledger.Identity) (ledger.Eligibility, error) {
	if err := validIDs(holder); err != nil {
		return ledger.Eligibility{}, fmt.Errorf("eligibility: %w", err)
	}
	now := l.clock.Now()
	var e ledger.Eligibility
	err := l.store.View(ctx, func(tx engine.Tx) error {
		rec, found, err := engine.Load[ledger.DailyIssuanceRecord](tx, engine.DailyMintKind(string(l.token)), string(holder))
		if err != nil {
			return err
		}
		if found {
			e = ledger.CheckEligibility(&rec, holder, now)
		} else {
			e = ledger.CheckEligibility(nil, holder, now)
		}
		return nil
	})
	if err != nil {
		return ledger.Eligibility{}, fmt.Errorf("eligibility: %w", err)
	}
	return e, nil
}

// Holding returns holder's balance of token.
func (l *Ledger) Holding(ctx context.Context, token, holder ledger.Identity) (ledger.Holding, error) {
	if err := validIDs(token, holder); err != nil {
		return ledger.Holding{}, fmt.Errorf("holding: %w", err)
	}
	var h ledger.Holding
	err := l.store.View(ctx, func(tx engine.Tx) error {
		var err error
		h, _, err = mint.GetHolding(tx, token, holder)
		return err
	})
	if err != nil {
		return ledger.Holding{}, fmt.Errorf("holding: %w", err)
	}
	return h, nil
}
