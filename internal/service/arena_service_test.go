package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soliseum/arenad/internal/consensus"
	"github.com/soliseum/arenad/internal/crypto"
	"github.com/soliseum/arenad/internal/domain"
	"github.com/soliseum/arenad/internal/payout"
)

// memState is the committed state shared by all transactions of a memTx.
type memState struct {
	arenas   map[string]domain.Arena
	stakes   map[string]domain.Stake
	balances map[string]uint64
}

func newMemState() *memState {
	return &memState{
		arenas:   make(map[string]domain.Arena),
		stakes:   make(map[string]domain.Stake),
		balances: make(map[string]uint64),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.arenas {
		c.arenas[k] = v
	}
	for k, v := range s.stakes {
		c.stakes[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// memTx runs each operation against a copy of the committed state, adopting
// the copy only when the operation succeeds. That gives the tests the same
// all-or-nothing behavior the postgres runner provides.
type memTx struct {
	state *memState
}

func newMemTx() *memTx { return &memTx{state: newMemState()} }

func (m *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.OpTx) error) error {
	work := m.state.clone()
	if err := fn(ctx, &memOpTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memOpTx struct {
	state *memState
}

func (t *memOpTx) Arenas() domain.ArenaStore { return (*memArenas)(t) }
func (t *memOpTx) Stakes() domain.StakeStore { return (*memStakes)(t) }
func (t *memOpTx) Escrow() domain.Custody    { return (*memCustody)(t) }

type memArenas memOpTx

func (s *memArenas) Create(_ context.Context, arena domain.Arena) error {
	if _, ok := s.state.arenas[arena.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.state.arenas[arena.ID] = arena
	return nil
}

func (s *memArenas) Get(_ context.Context, id string) (domain.Arena, error) {
	arena, ok := s.state.arenas[id]
	if !ok {
		return domain.Arena{}, domain.ErrNotFound
	}
	return arena, nil
}

func (s *memArenas) Update(_ context.Context, arena domain.Arena) error {
	if _, ok := s.state.arenas[arena.ID]; !ok {
		return domain.ErrNotFound
	}
	s.state.arenas[arena.ID] = arena
	return nil
}

func (s *memArenas) List(_ context.Context, _ domain.ListOpts) ([]domain.Arena, error) {
	out := make([]domain.Arena, 0, len(s.state.arenas))
	for _, a := range s.state.arenas {
		out = append(out, a)
	}
	return out, nil
}

type memStakes memOpTx

func stakeKey(arenaID, owner string) string { return arenaID + "/" + owner }

func (s *memStakes) Get(_ context.Context, arenaID, owner string) (domain.Stake, error) {
	st, ok := s.state.stakes[stakeKey(arenaID, owner)]
	if !ok {
		return domain.Stake{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *memStakes) Put(_ context.Context, stake domain.Stake) error {
	s.state.stakes[stakeKey(stake.ArenaID, stake.Owner)] = stake
	return nil
}

func (s *memStakes) MarkClaimed(_ context.Context, arenaID, owner string) error {
	key := stakeKey(arenaID, owner)
	st, ok := s.state.stakes[key]
	if !ok {
		return domain.ErrNotFound
	}
	if st.Claimed {
		return domain.ErrAlreadyClaimed
	}
	st.Claimed = true
	s.state.stakes[key] = st
	return nil
}

func (s *memStakes) ListByArena(_ context.Context, arenaID string, _ domain.ListOpts) ([]domain.Stake, error) {
	var out []domain.Stake
	for _, st := range s.state.stakes {
		if st.ArenaID == arenaID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memStakes) DeleteByArena(_ context.Context, arenaID string) error {
	for k, st := range s.state.stakes {
		if st.ArenaID == arenaID {
			delete(s.state.stakes, k)
		}
	}
	return nil
}

type memCustody memOpTx

func (c *memCustody) Transfer(_ context.Context, from, to string, amount uint64) error {
	if c.state.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	c.state.balances[from] -= amount
	c.state.balances[to] += amount
	return nil
}

func (c *memCustody) Balance(_ context.Context, account string) (uint64, error) {
	return c.state.balances[account], nil
}

func (c *memCustody) Credit(_ context.Context, account string, amount uint64) error {
	c.state.balances[account] += amount
	return nil
}

// testOracles holds a generated committee and its signers.
type testOracles struct {
	committee domain.Committee
	signers   [domain.CommitteeSize]*crypto.Signer
}

func newTestOracles(t *testing.T) testOracles {
	t.Helper()
	var o testOracles
	for i := range o.signers {
		signer, err := crypto.GenerateSigner()
		require.NoError(t, err)
		o.signers[i] = signer
		o.committee[i] = signer.PublicKey()
	}
	return o
}

func (o testOracles) sign(t *testing.T, msg []byte, indexes ...uint8) []consensus.IndexedSignature {
	t.Helper()
	sigs := make([]consensus.IndexedSignature, 0, len(indexes))
	for _, idx := range indexes {
		sig, err := o.signers[idx].SignMessage(msg)
		require.NoError(t, err)
		sigs = append(sigs, consensus.IndexedSignature{Index: idx, Signature: sig})
	}
	return sigs
}

type fixture struct {
	svc     *ArenaService
	tx      *memTx
	oracles testOracles
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tx := newMemTx()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:     NewArenaService(tx, nil, consensus.Secp256k1Verifier{}, logger),
		tx:      tx,
		oracles: newTestOracles(t),
	}
}

func (f *fixture) fund(account string, amount uint64) {
	f.tx.state.balances[account] = amount
}

func (f *fixture) openArena(t *testing.T, feeBps uint16) domain.Arena {
	t.Helper()
	arena, err := f.svc.OpenArena(context.Background(), OpenArenaParams{
		Creator: "creator",
		FeeBps:  feeBps,
		Oracles: f.oracles.committee,
	})
	require.NoError(t, err)
	return arena
}

func TestOpenArena(t *testing.T) {
	f := newFixture(t)

	arena := f.openArena(t, 500)
	require.Equal(t, domain.ArenaStatusActive, arena.Status)
	require.Equal(t, uint8(2), arena.Threshold)
	require.Zero(t, arena.TotalPool)
	require.Zero(t, arena.SettlementNonce)
	require.Nil(t, arena.Winner)

	_, err := f.svc.OpenArena(context.Background(), OpenArenaParams{
		Creator: "creator",
		FeeBps:  10001,
		Oracles: f.oracles.committee,
	})
	require.ErrorIs(t, err, domain.ErrMathOverflow)

	dup := f.oracles.committee
	dup[1] = dup[0]
	_, err = f.svc.OpenArena(context.Background(), OpenArenaParams{
		Creator: "creator",
		FeeBps:  0,
		Oracles: dup,
	})
	require.ErrorIs(t, err, domain.ErrInvalidOracleConfig)
}

func TestPlaceStake(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 500)
	f.fund("alice", 1_000)

	stake, err := f.svc.PlaceStake(ctx, arena.ID, "alice", 400, domain.SideA)
	require.NoError(t, err)
	require.Equal(t, uint64(400), stake.Amount)

	// Second stake on the same side accumulates.
	stake, err = f.svc.PlaceStake(ctx, arena.ID, "alice", 100, domain.SideA)
	require.NoError(t, err)
	require.Equal(t, uint64(500), stake.Amount)

	// Switching sides is rejected and the transfer is rolled back.
	_, err = f.svc.PlaceStake(ctx, arena.ID, "alice", 100, domain.SideB)
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)
	require.Equal(t, uint64(500), f.tx.state.balances["alice"])
	require.Equal(t, uint64(500), f.tx.state.balances[domain.EscrowAccount(arena.ID)])

	got, err := f.svc.GetArena(ctx, arena.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(500), got.TotalPool)
	require.Equal(t, uint64(500), got.PoolA)
	require.Zero(t, got.PoolB)
	require.Equal(t, got.TotalPool, got.PoolA+got.PoolB)

	_, err = f.svc.PlaceStake(ctx, arena.ID, "alice", 10_000, domain.SideA)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.svc.PlaceStake(ctx, arena.ID, "alice", 0, domain.SideA)
	require.ErrorIs(t, err, domain.ErrMathOverflow)
}

func TestPlaceStakeRejectedWhenNotActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)
	f.fund("alice", 100)

	msg := consensus.SettleMessage(arena.ID, domain.SideA, 0)
	_, err := f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, msg, 0, 1))
	require.NoError(t, err)

	_, err = f.svc.PlaceStake(ctx, arena.ID, "alice", 100, domain.SideA)
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)
	require.Equal(t, uint64(100), f.tx.state.balances["alice"])
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 500)

	msg := consensus.SettleMessage(arena.ID, domain.SideB, arena.SettlementNonce)

	// One signature is below the threshold.
	_, err := f.svc.Settle(ctx, arena.ID, domain.SideB, f.oracles.sign(t, msg, 0))
	require.ErrorIs(t, err, domain.ErrInsufficientSignatures)

	// Same oracle twice does not reach consensus.
	one := f.oracles.sign(t, msg, 1)
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideB,
		[]consensus.IndexedSignature{one[0], one[0]})
	require.ErrorIs(t, err, domain.ErrDuplicateOracle)

	// A signature over a different winner fails verification.
	wrong := consensus.SettleMessage(arena.ID, domain.SideA, arena.SettlementNonce)
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideB, f.oracles.sign(t, wrong, 0, 1))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	settled, err := f.svc.Settle(ctx, arena.ID, domain.SideB, f.oracles.sign(t, msg, 0, 2))
	require.NoError(t, err)
	require.Equal(t, domain.ArenaStatusSettled, settled.Status)
	require.NotNil(t, settled.Winner)
	require.Equal(t, domain.SideB, *settled.Winner)
	require.Equal(t, uint64(1), settled.SettlementNonce)

	// A second settle fails on status before anything else.
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, msg, 0, 1))
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)
}

func TestSettleReplayRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)

	msg := consensus.SettleMessage(arena.ID, domain.SideA, 0)
	sigs := f.oracles.sign(t, msg, 0, 1)

	_, err := f.svc.Settle(ctx, arena.ID, domain.SideA, sigs)
	require.NoError(t, err)

	// Reset back to Active; the nonce moves to 2, so the captured
	// signature set no longer matches the settle message.
	_, err = f.svc.Reset(ctx, arena.ID, "creator", nil)
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, arena.ID, domain.SideA, sigs)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 500)
	f.fund("alice", 1_000)
	f.fund("bob", 3_000)
	f.fund("carol", 800)

	_, err := f.svc.PlaceStake(ctx, arena.ID, "alice", 1_000, domain.SideA)
	require.NoError(t, err)
	_, err = f.svc.PlaceStake(ctx, arena.ID, "bob", 3_000, domain.SideB)
	require.NoError(t, err)
	_, err = f.svc.PlaceStake(ctx, arena.ID, "carol", 200, domain.SideA)
	require.NoError(t, err)

	msg := consensus.SettleMessage(arena.ID, domain.SideA, 0)
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, msg, 0, 1))
	require.NoError(t, err)

	// carol: 200 + 200*floor(3000*9500/10000)/1200 = 200 + 475.
	got, err := f.svc.Claim(ctx, arena.ID, "carol")
	require.NoError(t, err)
	require.Equal(t, uint64(675), got)
	require.Equal(t, uint64(600+675), f.tx.state.balances["carol"])

	// Double claim pays nothing.
	_, err = f.svc.Claim(ctx, arena.ID, "carol")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	require.Equal(t, uint64(600+675), f.tx.state.balances["carol"])

	// Losing side cannot claim.
	_, err = f.svc.Claim(ctx, arena.ID, "bob")
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)

	// alice: 1000 + 1000*2850/1200 = 1000 + 2375.
	got, err = f.svc.Claim(ctx, arena.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(3375), got)

	// Both claims together never exceed the escrow that backed them.
	escrow := f.tx.state.balances[domain.EscrowAccount(arena.ID)]
	require.Equal(t, uint64(4200-675-3375), escrow)
}

func TestClaimBeforeSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)
	f.fund("alice", 100)

	_, err := f.svc.PlaceStake(ctx, arena.ID, "alice", 100, domain.SideA)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, arena.ID, "alice")
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)
}

func TestClaimPayoutOverflowLeavesStakeUnclaimed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)

	// Force a payout whose total exceeds uint64 range.
	a := f.tx.state.arenas[arena.ID]
	side := domain.SideA
	a.Status = domain.ArenaStatusSettled
	a.Winner = &side
	a.PoolA = 1
	a.PoolB = ^uint64(0)
	a.TotalPool = ^uint64(0)
	f.tx.state.arenas[arena.ID] = a
	f.tx.state.stakes[stakeKey(arena.ID, "alice")] = domain.Stake{
		ArenaID: arena.ID,
		Owner:   "alice",
		Amount:  ^uint64(0),
		Side:    domain.SideA,
	}

	_, err := f.svc.Claim(ctx, arena.ID, "alice")
	require.ErrorIs(t, err, domain.ErrMathOverflow)

	// The failed transaction must not leave the stake marked claimed.
	require.False(t, f.tx.state.stakes[stakeKey(arena.ID, "alice")].Claimed)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)
	f.fund("alice", 100)

	// Reset on an active arena is rejected.
	_, err := f.svc.Reset(ctx, arena.ID, "creator", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)

	_, err = f.svc.PlaceStake(ctx, arena.ID, "alice", 100, domain.SideA)
	require.NoError(t, err)

	msg := consensus.SettleMessage(arena.ID, domain.SideA, 0)
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, msg, 0, 1))
	require.NoError(t, err)

	// Escrow still holds alice's unclaimed payout.
	_, err = f.svc.Reset(ctx, arena.ID, "creator", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArenaState)

	_, err = f.svc.Claim(ctx, arena.ID, "alice")
	require.NoError(t, err)

	// Neither creator nor consensus: unauthorized.
	_, err = f.svc.Reset(ctx, arena.ID, "mallory", nil)
	require.ErrorIs(t, err, domain.ErrUnauthorizedOracle)

	reset, err := f.svc.Reset(ctx, arena.ID, "creator", nil)
	require.NoError(t, err)
	require.Equal(t, domain.ArenaStatusActive, reset.Status)
	require.Zero(t, reset.TotalPool)
	require.Zero(t, reset.PoolA)
	require.Zero(t, reset.PoolB)
	require.Nil(t, reset.Winner)
	require.Equal(t, uint64(2), reset.SettlementNonce)

	// The next round starts with a clean book.
	_, err = f.svc.GetStake(ctx, arena.ID, "alice")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetByConsensus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)

	msg := consensus.SettleMessage(arena.ID, domain.SideB, 0)
	_, err := f.svc.Settle(ctx, arena.ID, domain.SideB, f.oracles.sign(t, msg, 1, 2))
	require.NoError(t, err)

	resetMsg := consensus.ResetMessage(arena.ID, 1)
	reset, err := f.svc.Reset(ctx, arena.ID, "", f.oracles.sign(t, resetMsg, 0, 2))
	require.NoError(t, err)
	require.Equal(t, domain.ArenaStatusActive, reset.Status)
}

func TestRotateOracles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)

	next := newTestOracles(t)

	// Unauthorized caller with no signatures.
	_, err := f.svc.RotateOracles(ctx, arena.ID, "mallory", next.committee, nil)
	require.ErrorIs(t, err, domain.ErrUnauthorizedOracle)

	// Consensus must come from the outgoing committee, not the incoming one.
	msg := consensus.RotateMessage(arena.ID, next.committee, 0)
	_, err = f.svc.RotateOracles(ctx, arena.ID, "", next.committee, next.sign(t, msg, 0, 1))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	rotated, err := f.svc.RotateOracles(ctx, arena.ID, "", next.committee, f.oracles.sign(t, msg, 0, 2))
	require.NoError(t, err)
	require.Equal(t, next.committee, rotated.Oracles)
	require.Equal(t, uint64(1), rotated.SettlementNonce)

	// The old committee can no longer settle.
	settleMsg := consensus.SettleMessage(arena.ID, domain.SideA, 1)
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, settleMsg, 0, 1))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	// The new one can.
	settled, err := f.svc.Settle(ctx, arena.ID, domain.SideA, next.sign(t, settleMsg, 1, 2))
	require.NoError(t, err)
	require.Equal(t, domain.ArenaStatusSettled, settled.Status)
}

func TestRotateOraclesAllowedMidContest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 0)
	f.fund("alice", 50)

	_, err := f.svc.PlaceStake(ctx, arena.ID, "alice", 50, domain.SideB)
	require.NoError(t, err)

	next := newTestOracles(t)
	rotated, err := f.svc.RotateOracles(ctx, arena.ID, "creator", next.committee, nil)
	require.NoError(t, err)
	require.Equal(t, domain.ArenaStatusActive, rotated.Status)
	require.Equal(t, uint64(50), rotated.PoolB)
}

func TestPayoutConservation(t *testing.T) {
	// Every winner claims; total paid never exceeds total escrowed.
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 300)

	stakers := map[string]struct {
		amount uint64
		side   domain.Side
	}{
		"alice": {997, domain.SideA},
		"bob":   {1_003, domain.SideA},
		"carol": {2_111, domain.SideB},
		"dave":  {13, domain.SideA},
	}
	var total uint64
	for owner, s := range stakers {
		f.fund(owner, s.amount)
		_, err := f.svc.PlaceStake(ctx, arena.ID, owner, s.amount, s.side)
		require.NoError(t, err)
		total += s.amount
	}

	msg := consensus.SettleMessage(arena.ID, domain.SideA, 0)
	_, err := f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, msg, 0, 1))
	require.NoError(t, err)

	var paid uint64
	for owner, s := range stakers {
		if s.side != domain.SideA {
			continue
		}
		got, err := f.svc.Claim(ctx, arena.ID, owner)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got, s.amount)
		paid += got
	}
	require.LessOrEqual(t, paid, total)

	// What remains in escrow is the fee plus truncation dust plus the
	// loser's stake share retained by the fee.
	escrow := f.tx.state.balances[domain.EscrowAccount(arena.ID)]
	require.Equal(t, total-paid, escrow)
}

func TestPayoutMatchesCalculator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	arena := f.openArena(t, 500)
	f.fund("alice", 200)
	f.fund("bob", 800)
	f.fund("carol", 3_000)

	_, err := f.svc.PlaceStake(ctx, arena.ID, "alice", 200, domain.SideA)
	require.NoError(t, err)
	_, err = f.svc.PlaceStake(ctx, arena.ID, "bob", 800, domain.SideA)
	require.NoError(t, err)
	_, err = f.svc.PlaceStake(ctx, arena.ID, "carol", 3_000, domain.SideB)
	require.NoError(t, err)

	msg := consensus.SettleMessage(arena.ID, domain.SideA, 0)
	_, err = f.svc.Settle(ctx, arena.ID, domain.SideA, f.oracles.sign(t, msg, 0, 1))
	require.NoError(t, err)

	want, err := payout.Calculate(200, 1_000, 3_000, 500)
	require.NoError(t, err)
	require.Equal(t, uint64(770), want)

	got, err := f.svc.Claim(ctx, arena.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGetArenaNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetArena(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
