// Package service implements the arena state machine: guarded lifecycle
// transitions, stake accounting, oracle-consensus authorization, and claim
// orchestration. Every mutating operation runs under a per-arena lock and
// inside a single storage transaction, so each operation either commits
// fully or leaves no trace.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soliseum/arenad/internal/consensus"
	"github.com/soliseum/arenad/internal/domain"
	"github.com/soliseum/arenad/internal/payout"
)

// arenaLockTTL bounds how long a crashed operation can keep an arena locked.
const arenaLockTTL = 10 * time.Second

// stakeRateLimit is the per-participant stake placement budget.
const (
	stakeRateLimit  = 20
	stakeRateWindow = time.Second
)

// ArenaService owns all arena lifecycle operations.
type ArenaService struct {
	tx       domain.TxRunner
	locks    domain.LockManager
	verifier consensus.SignatureVerifier
	cache    domain.ArenaCache
	bus      domain.SignalBus
	limiter  domain.RateLimiter
	archiver domain.ArenaArchiver
	logger   *slog.Logger
}

// NewArenaService creates an ArenaService with its required dependencies.
// Optional collaborators (cache, bus, rate limiter, archiver) are attached
// with the With* methods.
func NewArenaService(
	tx domain.TxRunner,
	locks domain.LockManager,
	verifier consensus.SignatureVerifier,
	logger *slog.Logger,
) *ArenaService {
	return &ArenaService{
		tx:       tx,
		locks:    locks,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "arena_service")),
	}
}

// WithCache attaches an arena snapshot cache used by read paths.
func (s *ArenaService) WithCache(c domain.ArenaCache) *ArenaService {
	s.cache = c
	return s
}

// WithSignalBus attaches a bus on which lifecycle events are published.
func (s *ArenaService) WithSignalBus(bus domain.SignalBus) *ArenaService {
	s.bus = bus
	return s
}

// WithRateLimiter attaches a distributed rate limiter for stake placement.
func (s *ArenaService) WithRateLimiter(rl domain.RateLimiter) *ArenaService {
	s.limiter = rl
	return s
}

// WithArchiver attaches an archiver that snapshots settled arenas before a
// reset wipes them.
func (s *ArenaService) WithArchiver(a domain.ArenaArchiver) *ArenaService {
	s.archiver = a
	return s
}

// OpenArenaParams are the creation parameters for a new arena.
type OpenArenaParams struct {
	Creator string
	FeeBps  uint16
	Oracles domain.Committee
}

// OpenArena creates a new arena in Active status with zeroed pools and a
// zero settlement nonce.
func (s *ArenaService) OpenArena(ctx context.Context, p OpenArenaParams) (domain.Arena, error) {
	if p.Creator == "" {
		return domain.Arena{}, fmt.Errorf("%w: missing creator", domain.ErrInvalidArenaState)
	}
	if uint64(p.FeeBps) > domain.BpsDenominator {
		return domain.Arena{}, fmt.Errorf("%w: fee %d bps exceeds %d",
			domain.ErrMathOverflow, p.FeeBps, domain.BpsDenominator)
	}
	if err := p.Oracles.Validate(); err != nil {
		return domain.Arena{}, err
	}

	now := time.Now().UTC()
	arena := domain.Arena{
		ID:        uuid.NewString(),
		Creator:   p.Creator,
		Oracles:   p.Oracles,
		Threshold: domain.DefaultThreshold,
		Status:    domain.ArenaStatusActive,
		FeeBps:    p.FeeBps,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		return tx.Arenas().Create(ctx, arena)
	})
	if err != nil {
		return domain.Arena{}, fmt.Errorf("arena_service: open arena: %w", err)
	}

	s.cacheSet(ctx, arena)
	s.publish(ctx, domain.ChannelArenas, domain.Event{
		Type:    domain.EventArenaOpened,
		ArenaID: arena.ID,
	})

	s.logger.InfoContext(ctx, "arena opened",
		slog.String("arena_id", arena.ID),
		slog.String("creator", arena.Creator),
		slog.Int("fee_bps", int(arena.FeeBps)),
	)
	return arena, nil
}

// PlaceStake moves amount from the participant's custody account into the
// arena escrow and records it on the chosen side. A participant's first
// stake fixes their side; later stakes must match it and accumulate.
func (s *ArenaService) PlaceStake(ctx context.Context, arenaID, owner string, amount uint64, side domain.Side) (domain.Stake, error) {
	if !side.Valid() {
		return domain.Stake{}, fmt.Errorf("%w: side %d", domain.ErrInvalidArenaState, side)
	}
	if amount == 0 {
		return domain.Stake{}, fmt.Errorf("%w: zero stake amount", domain.ErrMathOverflow)
	}
	if owner == "" {
		return domain.Stake{}, fmt.Errorf("%w: missing owner", domain.ErrInvalidArenaState)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "stake:"+owner, stakeRateLimit, stakeRateWindow)
		if err != nil {
			return domain.Stake{}, fmt.Errorf("arena_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Stake{}, domain.ErrRateLimited
		}
	}

	unlock, err := s.lockArena(ctx, arenaID)
	if err != nil {
		return domain.Stake{}, err
	}
	defer unlock()

	var stake domain.Stake
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		arena, err := tx.Arenas().Get(ctx, arenaID)
		if err != nil {
			return err
		}
		if arena.Status != domain.ArenaStatusActive {
			return fmt.Errorf("%w: arena is %s", domain.ErrInvalidArenaState, arena.Status)
		}

		// Funds move first; any later guard failure rolls the transfer back
		// with the rest of the transaction.
		if err := tx.Escrow().Transfer(ctx, owner, domain.EscrowAccount(arenaID), amount); err != nil {
			return err
		}

		now := time.Now().UTC()
		stake, err = tx.Stakes().Get(ctx, arenaID, owner)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			stake = domain.Stake{
				ArenaID:   arenaID,
				Owner:     owner,
				Amount:    amount,
				Side:      side,
				CreatedAt: now,
				UpdatedAt: now,
			}
		case err != nil:
			return err
		default:
			if stake.Side != side {
				return fmt.Errorf("%w: stake is on side %d", domain.ErrInvalidArenaState, stake.Side)
			}
			stake.Amount, err = addUint64(stake.Amount, amount, "stake amount")
			if err != nil {
				return err
			}
			stake.UpdatedAt = now
		}

		arena.TotalPool, err = addUint64(arena.TotalPool, amount, "total pool")
		if err != nil {
			return err
		}
		if side == domain.SideA {
			arena.PoolA, err = addUint64(arena.PoolA, amount, "pool a")
		} else {
			arena.PoolB, err = addUint64(arena.PoolB, amount, "pool b")
		}
		if err != nil {
			return err
		}
		arena.UpdatedAt = now

		if err := tx.Stakes().Put(ctx, stake); err != nil {
			return err
		}
		return tx.Arenas().Update(ctx, arena)
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("arena_service: place stake: %w", err)
	}

	s.cacheInvalidate(ctx, arenaID)
	sideCopy := side
	s.publish(ctx, domain.ChannelStakes, domain.Event{
		Type:    domain.EventStakePlaced,
		ArenaID: arenaID,
		Owner:   owner,
		Side:    &sideCopy,
		Amount:  amount,
	})
	return stake, nil
}

// Settle declares the winning side. It requires threshold consensus from the
// arena's oracle committee over the settle message bound to the arena's
// current nonce; success advances the nonce so the same signature set can
// never settle twice.
func (s *ArenaService) Settle(ctx context.Context, arenaID string, winner domain.Side, sigs []consensus.IndexedSignature) (domain.Arena, error) {
	if !winner.Valid() {
		return domain.Arena{}, fmt.Errorf("%w: winner %d", domain.ErrInvalidArenaState, winner)
	}

	unlock, err := s.lockArena(ctx, arenaID)
	if err != nil {
		return domain.Arena{}, err
	}
	defer unlock()

	var arena domain.Arena
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		arena, err = tx.Arenas().Get(ctx, arenaID)
		if err != nil {
			return err
		}
		if arena.Status != domain.ArenaStatusActive {
			return fmt.Errorf("%w: arena is %s", domain.ErrInvalidArenaState, arena.Status)
		}

		msg := consensus.SettleMessage(arena.ID, winner, arena.SettlementNonce)
		if err := consensus.VerifyCommittee(s.verifier, arena.Oracles, arena.Threshold, msg, sigs); err != nil {
			return err
		}

		w := winner
		arena.Winner = &w
		arena.Status = domain.ArenaStatusSettled
		arena.SettlementNonce++
		arena.UpdatedAt = time.Now().UTC()
		return tx.Arenas().Update(ctx, arena)
	})
	if err != nil {
		return domain.Arena{}, fmt.Errorf("arena_service: settle: %w", err)
	}

	s.cacheSet(ctx, arena)
	s.publish(ctx, domain.ChannelSettlements, domain.Event{
		Type:    domain.EventArenaSettled,
		ArenaID: arena.ID,
		Winner:  arena.Winner,
		Nonce:   arena.SettlementNonce,
	})

	s.logger.InfoContext(ctx, "arena settled",
		slog.String("arena_id", arena.ID),
		slog.Int("winner", int(winner)),
		slog.Uint64("nonce", arena.SettlementNonce),
	)
	return arena, nil
}

// Reset returns a fully drained, settled arena to Active so it can host
// another contest. It is authorized either by the creator directly or by
// oracle consensus, and refuses to recycle an arena whose escrow still holds
// funds, so unclaimed payouts cannot be orphaned by a reset.
func (s *ArenaService) Reset(ctx context.Context, arenaID, caller string, sigs []consensus.IndexedSignature) (domain.Arena, error) {
	unlock, err := s.lockArena(ctx, arenaID)
	if err != nil {
		return domain.Arena{}, err
	}
	defer unlock()

	var (
		arena    domain.Arena
		snapshot domain.Arena
		stakes   []domain.Stake
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		arena, err = tx.Arenas().Get(ctx, arenaID)
		if err != nil {
			return err
		}
		if arena.Status != domain.ArenaStatusSettled {
			return fmt.Errorf("%w: arena is %s", domain.ErrInvalidArenaState, arena.Status)
		}

		balance, err := tx.Escrow().Balance(ctx, domain.EscrowAccount(arenaID))
		if err != nil {
			return err
		}
		if balance != 0 {
			return fmt.Errorf("%w: escrow holds %d unclaimed", domain.ErrInvalidArenaState, balance)
		}

		msg := consensus.ResetMessage(arena.ID, arena.SettlementNonce)
		if err := s.authorize(arena, caller, msg, sigs); err != nil {
			return err
		}

		snapshot = arena
		stakes, err = tx.Stakes().ListByArena(ctx, arenaID, domain.ListOpts{})
		if err != nil {
			return err
		}
		if err := tx.Stakes().DeleteByArena(ctx, arenaID); err != nil {
			return err
		}

		arena.TotalPool = 0
		arena.PoolA = 0
		arena.PoolB = 0
		arena.Winner = nil
		arena.Status = domain.ArenaStatusActive
		arena.SettlementNonce++
		arena.UpdatedAt = time.Now().UTC()
		return tx.Arenas().Update(ctx, arena)
	})
	if err != nil {
		return domain.Arena{}, fmt.Errorf("arena_service: reset: %w", err)
	}

	// Archival is best effort: the reset has already committed, and a
	// storage hiccup here must not resurrect the settled state.
	if s.archiver != nil {
		if err := s.archiver.ArchiveArena(ctx, snapshot, stakes); err != nil {
			s.logger.ErrorContext(ctx, "failed to archive settled arena",
				slog.String("arena_id", arenaID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.cacheSet(ctx, arena)
	s.publish(ctx, domain.ChannelSettlements, domain.Event{
		Type:    domain.EventArenaReset,
		ArenaID: arena.ID,
		Nonce:   arena.SettlementNonce,
	})
	return arena, nil
}

// RotateOracles replaces the arena's oracle committee. Unlike settle and
// reset it is not gated on arena status, so a compromised committee can be
// swapped out mid-contest. Authorization comes from the creator or from
// consensus of the outgoing committee.
func (s *ArenaService) RotateOracles(ctx context.Context, arenaID, caller string, newKeys domain.Committee, sigs []consensus.IndexedSignature) (domain.Arena, error) {
	if err := newKeys.Validate(); err != nil {
		return domain.Arena{}, err
	}

	unlock, err := s.lockArena(ctx, arenaID)
	if err != nil {
		return domain.Arena{}, err
	}
	defer unlock()

	var arena domain.Arena
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		arena, err = tx.Arenas().Get(ctx, arenaID)
		if err != nil {
			return err
		}

		msg := consensus.RotateMessage(arena.ID, newKeys, arena.SettlementNonce)
		if err := s.authorize(arena, caller, msg, sigs); err != nil {
			return err
		}

		arena.Oracles = newKeys
		arena.SettlementNonce++
		arena.UpdatedAt = time.Now().UTC()
		return tx.Arenas().Update(ctx, arena)
	})
	if err != nil {
		return domain.Arena{}, fmt.Errorf("arena_service: rotate oracles: %w", err)
	}

	s.cacheSet(ctx, arena)
	s.publish(ctx, domain.ChannelSettlements, domain.Event{
		Type:    domain.EventOraclesRotated,
		ArenaID: arena.ID,
		Nonce:   arena.SettlementNonce,
	})

	s.logger.InfoContext(ctx, "oracle committee rotated",
		slog.String("arena_id", arena.ID),
		slog.Uint64("nonce", arena.SettlementNonce),
	)
	return arena, nil
}

// Claim pays a winning staker their principal plus pro-rata reward from the
// losing pool. The claimed flag is flipped before the escrow transfer is
// requested, so a re-entrant or repeated claim fails ErrAlreadyClaimed
// instead of paying twice.
func (s *ArenaService) Claim(ctx context.Context, arenaID, owner string) (uint64, error) {
	unlock, err := s.lockArena(ctx, arenaID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var amount uint64
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		arena, err := tx.Arenas().Get(ctx, arenaID)
		if err != nil {
			return err
		}
		if arena.Status != domain.ArenaStatusSettled {
			return fmt.Errorf("%w: arena is %s", domain.ErrInvalidArenaState, arena.Status)
		}
		if arena.Winner == nil {
			return fmt.Errorf("%w: settled arena has no winner", domain.ErrInvalidArenaState)
		}
		winner := *arena.Winner

		stake, err := tx.Stakes().Get(ctx, arenaID, owner)
		if err != nil {
			return err
		}
		if stake.Claimed {
			return domain.ErrAlreadyClaimed
		}
		if stake.Side != winner {
			return fmt.Errorf("%w: stake is on the losing side", domain.ErrInvalidArenaState)
		}

		var loser domain.Side
		if winner == domain.SideA {
			loser = domain.SideB
		} else {
			loser = domain.SideA
		}

		amount, err = payout.Calculate(stake.Amount, arena.Pool(winner), arena.Pool(loser), arena.FeeBps)
		if err != nil {
			return err
		}

		// Flag before transfer.
		if err := tx.Stakes().MarkClaimed(ctx, arenaID, owner); err != nil {
			return err
		}
		return tx.Escrow().Transfer(ctx, domain.EscrowAccount(arenaID), owner, amount)
	})
	if err != nil {
		return 0, fmt.Errorf("arena_service: claim: %w", err)
	}

	s.publish(ctx, domain.ChannelClaims, domain.Event{
		Type:    domain.EventRewardClaimed,
		ArenaID: arenaID,
		Owner:   owner,
		Amount:  amount,
	})

	s.logger.InfoContext(ctx, "reward claimed",
		slog.String("arena_id", arenaID),
		slog.String("owner", owner),
		slog.Uint64("amount", amount),
	)
	return amount, nil
}

// GetArena returns an arena, preferring the cache.
func (s *ArenaService) GetArena(ctx context.Context, id string) (domain.Arena, error) {
	if s.cache != nil {
		if arena, err := s.cache.Get(ctx, id); err == nil {
			return arena, nil
		}
	}

	var arena domain.Arena
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		var err error
		arena, err = tx.Arenas().Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Arena{}, fmt.Errorf("arena_service: get arena: %w", err)
	}

	s.cacheSet(ctx, arena)
	return arena, nil
}

// ListArenas returns arenas ordered by creation time, newest first.
func (s *ArenaService) ListArenas(ctx context.Context, opts domain.ListOpts) ([]domain.Arena, error) {
	var arenas []domain.Arena
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		var err error
		arenas, err = tx.Arenas().List(ctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("arena_service: list arenas: %w", err)
	}
	return arenas, nil
}

// ListStakes returns the stake book of an arena.
func (s *ArenaService) ListStakes(ctx context.Context, arenaID string, opts domain.ListOpts) ([]domain.Stake, error) {
	var stakes []domain.Stake
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		if _, err := tx.Arenas().Get(ctx, arenaID); err != nil {
			return err
		}
		var err error
		stakes, err = tx.Stakes().ListByArena(ctx, arenaID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("arena_service: list stakes: %w", err)
	}
	return stakes, nil
}

// Deposit credits a participant's custody account. It is the on-ramp that
// funds later stake placements.
func (s *ArenaService) Deposit(ctx context.Context, owner string, amount uint64) error {
	if owner == "" {
		return fmt.Errorf("%w: missing owner", domain.ErrInvalidArenaState)
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero deposit", domain.ErrMathOverflow)
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		return tx.Escrow().Credit(ctx, owner, amount)
	})
	if err != nil {
		return fmt.Errorf("arena_service: deposit: %w", err)
	}
	return nil
}

// Balance returns a custody account balance.
func (s *ArenaService) Balance(ctx context.Context, account string) (uint64, error) {
	var balance uint64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		var err error
		balance, err = tx.Escrow().Balance(ctx, account)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("arena_service: balance: %w", err)
	}
	return balance, nil
}

// GetStake returns one participant's stake on an arena.
func (s *ArenaService) GetStake(ctx context.Context, arenaID, owner string) (domain.Stake, error) {
	var stake domain.Stake
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.OpTx) error {
		var err error
		stake, err = tx.Stakes().Get(ctx, arenaID, owner)
		return err
	})
	if err != nil {
		return domain.Stake{}, fmt.Errorf("arena_service: get stake: %w", err)
	}
	return stake, nil
}

// authorize accepts a privileged operation when the caller is the arena
// creator, or when the signature set reaches committee consensus over msg.
func (s *ArenaService) authorize(arena domain.Arena, caller string, msg []byte, sigs []consensus.IndexedSignature) error {
	if caller != "" && strings.EqualFold(caller, arena.Creator) {
		return nil
	}
	if len(sigs) == 0 {
		return domain.ErrUnauthorizedOracle
	}
	return consensus.VerifyCommittee(s.verifier, arena.Oracles, arena.Threshold, msg, sigs)
}

// lockArena serializes operations on one arena. Without a lock manager
// (single-process deployments, tests) operations fall back to the storage
// transaction's own row locking.
func (s *ArenaService) lockArena(ctx context.Context, arenaID string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "arena:"+arenaID, arenaLockTTL)
	if err != nil {
		return nil, fmt.Errorf("arena_service: lock arena %s: %w", arenaID, err)
	}
	return unlock, nil
}

func (s *ArenaService) cacheSet(ctx context.Context, arena domain.Arena) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, arena); err != nil {
		s.logger.WarnContext(ctx, "arena cache set failed",
			slog.String("arena_id", arena.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ArenaService) cacheInvalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "arena cache invalidate failed",
			slog.String("arena_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ArenaService) publish(ctx context.Context, channel string, ev domain.Event) {
	if s.bus == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to marshal event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
