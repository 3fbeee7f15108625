package ledger

import (
	"errors"
	"math"
	"testing"
)

const day = SecondsPerDay

func TestDayOf(t *testing.T) {
	tests := []struct {
		now  int64
		want Day
	}{
		{0, 0},
		{86399, 0},
		{86400, 1},
		{86401, 1},
		{19000*day + 43200, 19000},
	}
	for _, tt := range tests {
		if got := DayOf(tt.now); got != tt.want {
			t.Errorf("DayOf(%d) = %d, want %d", tt.now, got, tt.want)
		}
	}
}

func TestFirstGrantBootstrap(t *testing.T) {
	now := int64(19500*day + 1234)

	if StateOf(nil, now) != Uninitialized {
		t.Fatalf("expected Uninitialized for missing record")
	}

	rec, action, err := RequestDailyMint(nil, "holder", now, 100)
	if err != nil {
		t.Fatalf("RequestDailyMint failed: %v", err)
	}
	if rec.HolderID != "holder" || rec.LastMintDay != DayOf(now) || rec.TotalMinted != 100 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if action != (MintAction{To: "holder", Amount: 100}) {
		t.Errorf("unexpected action: %+v", action)
	}
	if StateOf(&rec, now) != Exhausted {
		t.Errorf("expected Exhausted after grant, got %v", StateOf(&rec, now))
	}
}

func TestIdempotentWithinDay(t *testing.T) {
	start := int64(20000 * day)
	rec, _, err := RequestDailyMint(nil, "holder", start, DefaultGrantAmount)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	grants := 1
	for _, offset := range []int64{0, 1, 60, 3600, day - 1} {
		next, action, err := RequestDailyMint(&rec, "holder", start+offset, DefaultGrantAmount)
		if err == nil {
			grants++
			rec = next
			continue
		}
		if !errors.Is(err, ErrAlreadyClaimedToday) {
			t.Fatalf("expected ErrAlreadyClaimedToday, got %v", err)
		}
		if next != rec {
			t.Errorf("record changed on denial: %+v", next)
		}
		if action != (MintAction{}) {
			t.Errorf("action produced on denial: %+v", action)
		}
	}
	if grants != 1 {
		t.Fatalf("expected exactly one grant in the day, got %d", grants)
	}
	if rec.TotalMinted != DefaultGrantAmount {
		t.Errorf("expected total %d, got %d", DefaultGrantAmount, rec.TotalMinted)
	}

	rec, _, err = RequestDailyMint(&rec, "holder", start+day, DefaultGrantAmount)
	if err != nil {
		t.Fatalf("next-day request failed: %v", err)
	}
	if rec.TotalMinted != 2*DefaultGrantAmount || rec.LastMintDay != DayOf(start+day) {
		t.Errorf("unexpected record after next day: %+v", rec)
	}
}

func TestDayBoundary(t *testing.T) {
	rec := DailyIssuanceRecord{HolderID: "holder", LastMintDay: 0, TotalMinted: 0}

	rec, _, err := RequestDailyMint(&rec, "holder", 86399, 100)
	if err != nil {
		t.Fatalf("request at 86399 failed: %v", err)
	}
	if rec.LastMintDay != 0 {
		t.Errorf("expected last_mint_day 0, got %d", rec.LastMintDay)
	}

	rec, _, err = RequestDailyMint(&rec, "holder", 86400, 100)
	if err != nil {
		t.Fatalf("request at 86400 failed: %v", err)
	}
	if rec.LastMintDay != 1 || rec.TotalMinted != 200 {
		t.Errorf("expected day 1 total 200, got %+v", rec)
	}
}

func TestDayZeroClaimedOnce(t *testing.T) {
	rec, _, err := RequestDailyMint(nil, "holder", 10, 100)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, _, err := RequestDailyMint(&rec, "holder", 20, 100); !errors.Is(err, ErrAlreadyClaimedToday) {
		t.Fatalf("expected ErrAlreadyClaimedToday on day 0 retry, got %v", err)
	}
}

func TestOverflowLeavesRecordUnchanged(t *testing.T) {
	rec := DailyIssuanceRecord{HolderID: "holder", LastMintDay: 19000, TotalMinted: math.MaxUint64 - 50}
	before := rec

	next, action, err := RequestDailyMint(&rec, "holder", 19001*day, 100)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if next != before || rec != before {
		t.Errorf("record changed on overflow: %+v", next)
	}
	if action != (MintAction{}) {
		t.Errorf("action produced on overflow: %+v", action)
	}
}

func TestForeignHolderRejected(t *testing.T) {
	rec := DailyIssuanceRecord{HolderID: "alice", LastMintDay: 5, TotalMinted: 100}
	_, _, err := RequestDailyMint(&rec, "bob", 10*day, 100)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestArbitraryGrantAmount(t *testing.T) {
	rec, action, err := RequestDailyMint(nil, "holder", 3*day, 7)
	if err != nil {
		t.Fatalf("RequestDailyMint failed: %v", err)
	}
	if rec.TotalMinted != 7 || action.Amount != 7 {
		t.Errorf("expected grant of 7, got record %+v action %+v", rec, action)
	}
}

func TestNextEligibleAt(t *testing.T) {
	now := int64(100*day + 500)
	if got := NextEligibleAt(nil, now); got != now {
		t.Errorf("expected %d for missing record, got %d", now, got)
	}
	rec := DailyIssuanceRecord{HolderID: "h", LastMintDay: 100, TotalMinted: 100}
	if got := NextEligibleAt(&rec, now); got != 101*day {
		t.Errorf("expected %d, got %d", 101*day, got)
	}
	if StateOf(&rec, 101*day) != Eligible {
		t.Errorf("expected Eligible the next day")
	}
}

func TestCheckEligibility(t *testing.T) {
	now := int64(42*day + 7)

	e := CheckEligibility(nil, "holder", now)
	if e.State != "uninitialized" || e.NextEligibleAt != now || e.TotalMinted != 0 {
		t.Errorf("unexpected eligibility for missing record: %+v", e)
	}

	rec := DailyIssuanceRecord{HolderID: "holder", LastMintDay: 42, TotalMinted: 300}
	e = CheckEligibility(&rec, "holder", now)
	if e.State != "exhausted" || e.NextEligibleAt != 43*day || e.TotalMinted != 300 {
		t.Errorf("unexpected eligibility for claimed record: %+v", e)
	}

	e = CheckEligibility(&rec, "holder", 43*day)
	if e.State != "eligible" {
		t.Errorf("expected eligible next day, got %s", e.State)
	}
}

func TestRequestDailyMintRejectsDayPastRange(t *testing.T) {
	rec := DailyIssuanceRecord{HolderID: "h", LastMintDay: math.MaxUint32, TotalMinted: 100}
	now := int64(math.MaxUint32+1) * day

	got, action, err := RequestDailyMint(&rec, "h", now, DefaultGrantAmount)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if got != rec || action != (MintAction{}) {
		t.Errorf("record changed: %+v, action %+v", got, action)
	}

	// The last representable day still works.
	last := int64(math.MaxUint32)*day + day - 1
	if _, _, err := RequestDailyMint(&DailyIssuanceRecord{HolderID: "h", LastMintDay: 7, TotalMinted: 100}, "h", last, DefaultGrantAmount); err != nil {
		t.Errorf("last day rejected: %v", err)
	}
}
