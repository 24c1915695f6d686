package postgres

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestNumericUint64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 10_000, math.MaxInt64, math.MaxUint64} {
		got, err := uint64FromNumeric(numericFromUint64(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestUint64FromNumericExponent(t *testing.T) {
	// 42 * 10^3, how postgres may return a round NUMERIC.
	got, err := uint64FromNumeric(pgtype.Numeric{Int: big.NewInt(42), Exp: 3, Valid: true})
	require.NoError(t, err)
	require.Equal(t, uint64(42_000), got)
}

func TestUint64FromNumericRejects(t *testing.T) {
	cases := []struct {
		name string
		n    pgtype.Numeric
	}{
		{"null", pgtype.Numeric{}},
		{"fractional", pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true}},
		{"negative", pgtype.Numeric{Int: big.NewInt(-1), Valid: true}},
		{
			"above uint64 range",
			pgtype.Numeric{Int: new(big.Int).Add(new(big.Int).SetUint64(math.MaxUint64), big.NewInt(1)), Valid: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uint64FromNumeric(tc.n)
			require.Error(t, err)
		})
	}
}
