package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ArenaStore persists arenas.
type ArenaStore interface {
	Create(ctx context.Context, arena Arena) error
	// Get retrieves an arena by id. Implementations backed by a transaction
	// must lock the row for the remainder of the transaction.
	Get(ctx context.Context, id string) (Arena, error)
	Update(ctx context.Context, arena Arena) error
	List(ctx context.Context, opts ListOpts) ([]Arena, error)
}

// StakeStore persists per-(arena, participant) stakes.
type StakeStore interface {
	Get(ctx context.Context, arenaID, owner string) (Stake, error)
	Put(ctx context.Context, stake Stake) error
	// MarkClaimed flips the claimed flag. It returns ErrAlreadyClaimed when
	// the flag was already set, so a concurrent double-claim cannot pay twice.
	MarkClaimed(ctx context.Context, arenaID, owner string) error
	ListByArena(ctx context.Context, arenaID string, opts ListOpts) ([]Stake, error)
	// DeleteByArena removes every stake on an arena. Reset calls it so a
	// recycled arena starts its next contest with a clean book.
	DeleteByArena(ctx context.Context, arenaID string) error
}

// Custody is the external fund-custody primitive. The settlement core never
// holds balances itself; it only asks custody to move the full amount or
// nothing at all.
type Custody interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
	// Credit funds an account out of thin air. It exists for the deposit
	// surface; the settlement core itself never mints.
	Credit(ctx context.Context, account string, amount uint64) error
}

// OpTx exposes the stores bound to one storage transaction.
type OpTx interface {
	Arenas() ArenaStore
	Stakes() StakeStore
	Escrow() Custody
}

// TxRunner executes fn inside a single all-or-nothing storage transaction.
// If fn returns an error, every mutation made through the OpTx is discarded.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OpTx) error) error
}

// LockManager provides distributed mutual exclusion. The settlement core
// takes one lock per arena around every mutating operation so that no two
// operations on the same arena ever interleave.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is a lightweight publish/subscribe fabric for settlement events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// ArenaCache provides fast read access to arena snapshots.
type ArenaCache interface {
	Set(ctx context.Context, arena Arena) error
	Get(ctx context.Context, id string) (Arena, error)
	Invalidate(ctx context.Context, id string) error
}

// ArenaArchiver persists the final snapshot of a settled arena before a
// reset wipes its pools.
type ArenaArchiver interface {
	ArchiveArena(ctx context.Context, arena Arena, stakes []Stake) error
}
