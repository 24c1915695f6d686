package domain

import "time"

// Pub/sub channels carrying settlement lifecycle events. The websocket hub
// subscribes to all of them and fans messages out to connected clients.
const (
	ChannelArenas      = "arenas"
	ChannelStakes      = "stakes"
	ChannelSettlements = "settlements"
	ChannelClaims      = "claims"
)

// Event types published on the channels above.
const (
	EventArenaOpened    = "arena.opened"
	EventStakePlaced    = "stake.placed"
	EventArenaSettled   = "arena.settled"
	EventArenaReset     = "arena.reset"
	EventOraclesRotated = "arena.oracles_rotated"
	EventRewardClaimed  = "reward.claimed"
)

// Event is the JSON payload published on the signal bus.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	ArenaID string    `json:"arena_id"`
	At      time.Time `json:"at"`

	// Optional fields, populated per event type.
	Owner  string `json:"owner,omitempty"`
	Side   *Side  `json:"side,omitempty"`
	Winner *Side  `json:"winner,omitempty"`
	Amount uint64 `json:"amount,omitempty"`
	Nonce  uint64 `json:"nonce,omitempty"`
}
