package domain

import "time"

// Stake is a participant's cumulative position on one side of one arena.
// There is at most one Stake per (arena, owner) pair; repeat wagers by the
// same owner accumulate into it and must stay on the original side.
type Stake struct {
	ArenaID string `json:"arena_id"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
	Side    Side   `json:"side"`

	// Claimed flips false -> true exactly once, during a successful claim,
	// and is never reset while the stake exists.
	Claimed bool `json:"claimed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
