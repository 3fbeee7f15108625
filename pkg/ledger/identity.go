package ledger

import (
	"fmt"
	"math"
	"regexp"
)

// Identity is an externally authenticated handle. The ledger only compares it.
type Identity string

// maxIdentityLen bounds handles; they double as file names and protocol tokens.
const maxIdentityLen = 128

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidIdentity reports whether id can be used as a record key.
func ValidIdentity(id Identity) error {
	if id == "" || len(id) > maxIdentityLen || !identityPattern.MatchString(string(id)) {
		return fmt.Errorf("identity %q: %w", id, ErrInvalidArgument)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("identity %q: %w", id, ErrInvalidArgument)
	}
	return nil
}

func checkLen(field, value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%s exceeds %d bytes: %w", field, max, ErrInvalidArgument)
	}
	return nil
}

func checkTime(now int64) error {
	if now < 0 {
		return fmt.Errorf("timestamp %d before epoch: %w", now, ErrInvalidArgument)
	}
	if now/SecondsPerDay > math.MaxUint32 {
		return fmt.Errorf("timestamp %d past the last day number: %w", now, ErrInvalidArgument)
	}
	return nil
}
