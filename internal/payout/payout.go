// Package payout computes pari-mutuel rewards: the losing pool, net of the
// platform fee, is split among winners pro rata to their share of the
// winning pool, on top of their returned principal.
package payout

import (
	"github.com/holiman/uint256"

	"github.com/soliseum/arenad/internal/domain"
)

// Calculate returns the total payout (principal plus reward) for a winning
// stake.
//
//	net_loser_pool = loser_pool * (10000 - fee_bps) / 10000
//	reward         = stake_amount * net_loser_pool / winner_pool
//	total          = stake_amount + reward
//
// The fee is skimmed from the losing pool only; principal always comes back
// whole. Intermediates are computed in 256-bit arithmetic so the
// multiplications cannot overflow before their division, and the final value
// is checked against uint64 range. Division truncates: across all winners
// the distributed rewards may undershoot the net losing pool by dust, never
// overshoot it.
//
// A zero winner pool is a structural invariant violation (a declared winner
// with no stakers) and is reported as an error rather than reaching the
// division.
func Calculate(stakeAmount, winnerPool, loserPool uint64, feeBps uint16) (uint64, error) {
	if uint64(feeBps) > domain.BpsDenominator {
		return 0, domain.ErrMathOverflow
	}
	if winnerPool == 0 {
		return 0, domain.ErrMathOverflow
	}

	bps := uint256.NewInt(domain.BpsDenominator)

	netLoserPool := uint256.NewInt(loserPool)
	netLoserPool.Mul(netLoserPool, uint256.NewInt(domain.BpsDenominator-uint64(feeBps)))
	netLoserPool.Div(netLoserPool, bps)

	reward := uint256.NewInt(stakeAmount)
	reward.Mul(reward, netLoserPool)
	reward.Div(reward, uint256.NewInt(winnerPool))

	total := new(uint256.Int).Add(uint256.NewInt(stakeAmount), reward)
	if !total.IsUint64() {
		return 0, domain.ErrMathOverflow
	}
	return total.Uint64(), nil
}
