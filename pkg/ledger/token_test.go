package ledger

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestCreateDescriptor(t *testing.T) {
	desc, err := CreateDescriptor("mint-1", "Practice Token", "PRAC", "A token for practice", 9, "authority")
	if err != nil {
		t.Fatalf("CreateDescriptor failed: %v", err)
	}
	if desc.TotalSupply != 0 || desc.Symbol != "PRAC" || desc.Authority != "authority" {
		t.Errorf("unexpected descriptor: %+v", desc)
	}
}

func TestCreateDescriptorBounds(t *testing.T) {
	tests := []struct {
		name, symbol, description string
	}{
		{strings.Repeat("n", MaxTokenNameLen+1), "SYM", ""},
		{"name", strings.Repeat("S", MaxTokenSymbolLen+1), ""},
		{"name", "SYM", strings.Repeat("d", MaxDescriptionLen+1)},
	}
	for _, tt := range tests {
		if _, err := CreateDescriptor("mint", tt.name, tt.symbol, tt.description, 0, "auth"); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	}
}

func TestRecordSupplyIncrease(t *testing.T) {
	desc, _ := CreateDescriptor("mint", "Token", "TOK", "", 0, "auth")

	desc, err := RecordSupplyIncrease(desc, 100)
	if err != nil {
		t.Fatalf("RecordSupplyIncrease failed: %v", err)
	}
	if desc.TotalSupply != 100 {
		t.Errorf("expected supply 100, got %d", desc.TotalSupply)
	}

	desc.TotalSupply = math.MaxUint64
	got, err := RecordSupplyIncrease(desc, 1)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if got.TotalSupply != math.MaxUint64 {
		t.Errorf("supply changed on overflow: %d", got.TotalSupply)
	}
}
