package service

import (
	"fmt"

	"github.com/soliseum/arenad/internal/domain"
)

// addUint64 is checked addition for pool and stake accumulators. Every
// mutation of a balance-like field goes through it so an overflow anywhere
// aborts the whole operation instead of wrapping.
func addUint64(a, b uint64, field string) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, fmt.Errorf("%w: %s", domain.ErrMathOverflow, field)
	}
	return a + b, nil
}
