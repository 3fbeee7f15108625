package ledger

import "fmt"

// SecondsPerDay is the width of one day bucket.
const SecondsPerDay = 86400

// DefaultGrantAmount is the fixed daily grant.
const DefaultGrantAmount uint64 = 100

// Day is a day number since the Unix epoch. Zero means "never minted".
type Day uint32

// DayOf buckets a Unix timestamp into its day number by truncating division.
// It is not calendar or timezone aware.
func DayOf(now int64) Day {
	return Day(now / SecondsPerDay)
}

// DailyIssuanceRecord remembers the last day a holder was granted tokens.
type DailyIssuanceRecord struct {
	HolderID    Identity `json:"holder_id"`
	LastMintDay Day      `json:"last_mint_day"`
	TotalMinted uint64   `json:"total_minted"`
}

// MintAction is the side effect of an approved grant. The token executor applies it.
type MintAction struct {
	To     Identity `json:"to"`
	Amount uint64   `json:"amount"`
}

// IssuanceState is the rate-limiter state of one holder.
type IssuanceState int

const (
	Uninitialized IssuanceState = iota
	Eligible
	Exhausted
)

func (s IssuanceState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Eligible:
		return "eligible"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("IssuanceState(%d)", int(s))
	}
}

// StateOf classifies rec at time now. A nil record is Uninitialized.
func StateOf(rec *DailyIssuanceRecord, now int64) IssuanceState {
	if rec == nil {
		return Uninitialized
	}
	if rec.claimedOn(DayOf(now)) {
		return Exhausted
	}
	return Eligible
}

// claimedOn reports whether a grant was recorded on day. Day 0 doubles as the
// "never minted" marker, so it only counts once something was actually minted.
func (r DailyIssuanceRecord) claimedOn(day Day) bool {
	if r.LastMintDay != day {
		return false
	}
	return day != 0 || r.TotalMinted != 0
}

// NextEligibleAt returns the earliest timestamp at which a grant can be requested.
// It is now itself unless the holder is Exhausted.
func NextEligibleAt(rec *DailyIssuanceRecord, now int64) int64 {
	if StateOf(rec, now) != Exhausted {
		return now
	}
	return (int64(DayOf(now)) + 1) * SecondsPerDay
}

// RequestDailyMint decides whether holder gets grant tokens at time now.
//
// rec is the stored record, or nil when none exists yet. On success it returns
// the record to persist and the action to execute; both must be committed
// together. On any error the returned record equals the input and the action
// is the zero value.
func RequestDailyMint(rec *DailyIssuanceRecord, holder Identity, now int64, grant uint64) (DailyIssuanceRecord, MintAction, error) {
	if err := checkTime(now); err != nil {
		return deref(rec), MintAction{}, err
	}
	current := DayOf(now)

	var base DailyIssuanceRecord
	if rec == nil {
		if err := ValidIdentity(holder); err != nil {
			return DailyIssuanceRecord{}, MintAction{}, err
		}
		base = DailyIssuanceRecord{HolderID: holder, LastMintDay: 0, TotalMinted: 0}
	} else {
		base = *rec
		if base.HolderID != holder {
			return base, MintAction{}, fmt.Errorf("daily record of %s requested by %s: %w", base.HolderID, holder, ErrUnauthorized)
		}
	}

	if base.claimedOn(current) {
		return deref(rec), MintAction{}, fmt.Errorf("holder %s on day %d: %w", holder, current, ErrAlreadyClaimedToday)
	}

	total, err := CheckedAdd(base.TotalMinted, grant)
	if err != nil {
		return deref(rec), MintAction{}, fmt.Errorf("total minted for %s: %w", holder, err)
	}

	next := base
	next.LastMintDay = current
	next.TotalMinted = total
	return next, MintAction{To: holder, Amount: grant}, nil
}

func deref(rec *DailyIssuanceRecord) DailyIssuanceRecord {
	if rec == nil {
		return DailyIssuanceRecord{}
	}
	return *rec
}
