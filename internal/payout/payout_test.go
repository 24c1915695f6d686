package payout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soliseum/arenad/internal/domain"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		name       string
		stake      uint64
		winnerPool uint64
		loserPool  uint64
		feeBps     uint16
		want       uint64
	}{
		{
			// net loser pool 3000*9500/10000 = 2850, reward 200*2850/1000 = 570.
			name:       "pro rata with fee",
			stake:      200,
			winnerPool: 1000,
			loserPool:  3000,
			feeBps:     500,
			want:       770,
		},
		{
			name:       "sole winner takes whole net pool",
			stake:      1000,
			winnerPool: 1000,
			loserPool:  3000,
			feeBps:     500,
			want:       3850,
		},
		{
			name:       "zero loser pool returns principal",
			stake:      500,
			winnerPool: 500,
			loserPool:  0,
			feeBps:     250,
			want:       500,
		},
		{
			name:       "full fee returns principal",
			stake:      500,
			winnerPool: 1000,
			loserPool:  9999,
			feeBps:     10000,
			want:       500,
		},
		{
			name:       "zero fee distributes whole pool",
			stake:      1000,
			winnerPool: 1000,
			loserPool:  777,
			feeBps:     0,
			want:       1777,
		},
		{
			// max pools on both sides still fit 256-bit intermediates.
			name:       "large pools without intermediate overflow",
			stake:      math.MaxUint64 / 2,
			winnerPool: math.MaxUint64,
			loserPool:  math.MaxUint64 / 4,
			feeBps:     0,
			want:       math.MaxUint64/2 + math.MaxUint64/8,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Calculate(tc.stake, tc.winnerPool, tc.loserPool, tc.feeBps)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCalculateZeroWinnerPool(t *testing.T) {
	_, err := Calculate(100, 0, 1000, 100)
	require.ErrorIs(t, err, domain.ErrMathOverflow)
}

func TestCalculateFeeAboveDenominator(t *testing.T) {
	_, err := Calculate(100, 1000, 1000, 10001)
	require.ErrorIs(t, err, domain.ErrMathOverflow)
}

func TestCalculateResultOverflowsUint64(t *testing.T) {
	// stake == winnerPool, so the reward equals the full net loser pool and
	// principal + reward exceeds uint64 range.
	_, err := Calculate(math.MaxUint64, math.MaxUint64, math.MaxUint64, 0)
	require.ErrorIs(t, err, domain.ErrMathOverflow)
}

// TestCalculateConservation checks that truncating division never pays out
// more than the pot holds: summed rewards are at most the net loser pool,
// with any shortfall being dust left in escrow.
func TestCalculateConservation(t *testing.T) {
	const (
		loserPool = 10_001
		feeBps    = 137
	)
	stakes := []uint64{1, 7, 333, 5000, 1659}

	var winnerPool uint64
	for _, s := range stakes {
		winnerPool += s
	}

	netLoserPool := loserPool * (10000 - feeBps) / 10000

	var rewards uint64
	for _, s := range stakes {
		total, err := Calculate(s, winnerPool, loserPool, feeBps)
		require.NoError(t, err)
		require.GreaterOrEqual(t, total, s)
		rewards += total - s
	}

	require.LessOrEqual(t, rewards, uint64(netLoserPool))
}

// TestCalculateDust pins down the truncation direction: three equal winners
// splitting an indivisible pool each get the floor share.
func TestCalculateDust(t *testing.T) {
	for _, stake := range []uint64{1, 1, 1} {
		total, err := Calculate(stake, 3, 10, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(4), total) // 1 principal + floor(10/3)
	}
}
