package ledger

import (
	"fmt"
	"math/bits"
)

// CheckedAdd returns current+delta, or ErrOverflow if the sum does not fit in 64 bits.
// On failure the returned value is current, so a caller that ignores the error
// still cannot apply a wrapped result.
func CheckedAdd(current, delta uint64) (uint64, error) {
	sum, carry := bits.Add64(current, delta, 0)
	if carry != 0 {
		return current, fmt.Errorf("%d + %d: %w", current, delta, ErrOverflow)
	}
	return sum, nil
}
