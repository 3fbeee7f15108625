// Package ledger holds the decision logic of the Celerix mint: profile records,
// token descriptors and the once-per-day issuance rate-limiter.
//
// Every function here is a pure transition. Callers load records from a store,
// hand them in by value and persist whatever comes back.
package ledger

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not the owner of the record.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrOverflow is returned when a counter would exceed its numeric range.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrAlreadyClaimedToday is returned when the holder has already received today's grant.
	ErrAlreadyClaimedToday = errors.New("daily grant already claimed")
	// ErrAlreadyExists is returned when a record is created for a handle that already has one.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidArgument is returned for malformed handles, oversized text or bad timestamps.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error codes are the stable wire names of the error kinds.
const (
	CodeUnauthorized        = "unauthorized"
	CodeOverflow            = "overflow"
	CodeAlreadyClaimedToday = "already_claimed_today"
	CodeAlreadyExists       = "already_exists"
	CodeNotFound            = "not_found"
	CodeInvalidArgument     = "invalid_argument"
	CodeInternal            = "internal"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeUnauthorized, ErrUnauthorized},
	{CodeOverflow, ErrOverflow},
	{CodeAlreadyClaimedToday, ErrAlreadyClaimedToday},
	{CodeAlreadyExists, ErrAlreadyExists},
	{CodeNotFound, ErrNotFound},
	{CodeInvalidArgument, ErrInvalidArgument},
}

// Code returns the wire code of the first error kind found in err's chain.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode maps a wire code back to its sentinel. Unknown codes return nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
