package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/soliseum/arenad/internal/domain"
)

// querier is the subset of pgx.Tx the stores need. Stores only ever run
// inside a transaction, so there is no pool-backed variant.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner implements domain.TxRunner over a pgx connection pool.
type TxRunner struct {
	pool interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	}
}

// NewTxRunner creates a TxRunner backed by the client's pool.
func NewTxRunner(c *Client) *TxRunner {
	return &TxRunner{pool: c.pool}
}

// WithinTx runs fn inside a single database transaction. Any error from fn
// rolls back every mutation made through the OpTx.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.OpTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, opTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// opTx binds the stores to one open transaction.
type opTx struct {
	q querier
}

func (t opTx) Arenas() domain.ArenaStore { return &ArenaStore{q: t.q} }
func (t opTx) Stakes() domain.StakeStore { return &StakeStore{q: t.q} }
func (t opTx) Escrow() domain.Custody    { return &EscrowStore{q: t.q} }

// Pool amounts and balances are stored as NUMERIC(20,0) so the full uint64
// range survives the round trip.

func numericFromUint64(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

func uint64FromNumeric(n pgtype.Numeric) (uint64, error) {
	if !n.Valid || n.Int == nil {
		return 0, fmt.Errorf("postgres: null numeric")
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		return 0, fmt.Errorf("postgres: fractional numeric %s", n.Int)
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("postgres: numeric %s out of uint64 range", v)
	}
	return v.Uint64(), nil
}
