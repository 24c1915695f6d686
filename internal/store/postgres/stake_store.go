package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/soliseum/arenad/internal/domain"
)

// StakeStore implements domain.StakeStore using PostgreSQL.
type StakeStore struct {
	q querier
}

const stakeCols = `arena_id, owner, amount, side, claimed, created_at, updated_at`

// Get retrieves one participant's stake on an arena.
func (s *StakeStore) Get(ctx context.Context, arenaID, owner string) (domain.Stake, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+stakeCols+` FROM stakes WHERE arena_id = $1 AND owner = $2 FOR UPDATE`,
		arenaID, owner)
	st, err := scanStake(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stake{}, domain.ErrNotFound
		}
		return domain.Stake{}, fmt.Errorf("postgres: get stake %s/%s: %w", arenaID, owner, err)
	}
	return st, nil
}

// Put inserts or replaces a stake.
func (s *StakeStore) Put(ctx context.Context, st domain.Stake) error {
	const query = `
		INSERT INTO stakes (
			arena_id, owner, amount, side, claimed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (arena_id, owner) DO UPDATE SET
			amount     = EXCLUDED.amount,
			side       = EXCLUDED.side,
			claimed    = EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at`

	_, err := s.q.Exec(ctx, query,
		st.ArenaID, st.Owner, numericFromUint64(st.Amount),
		int16(st.Side), st.Claimed, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put stake %s/%s: %w", st.ArenaID, st.Owner, err)
	}
	return nil
}

// MarkClaimed flips the claimed flag. The WHERE clause only matches an
// unclaimed row, so a second caller sees zero rows affected and gets
// ErrAlreadyClaimed instead of a double payout.
func (s *StakeStore) MarkClaimed(ctx context.Context, arenaID, owner string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE stakes SET claimed = TRUE, updated_at = NOW()
		WHERE arena_id = $1 AND owner = $2 AND claimed = FALSE`,
		arenaID, owner)
	if err != nil {
		return fmt.Errorf("postgres: mark stake claimed %s/%s: %w", arenaID, owner, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.q.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM stakes WHERE arena_id = $1 AND owner = $2)",
			arenaID, owner,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check stake %s/%s: %w", arenaID, owner, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// ListByArena returns all stakes on an arena.
func (s *StakeStore) ListByArena(ctx context.Context, arenaID string, opts domain.ListOpts) ([]domain.Stake, error) {
	query := `SELECT ` + stakeCols + ` FROM stakes WHERE arena_id = $1 ORDER BY created_at`
	args := []any{arenaID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes for %s: %w", arenaID, err)
	}
	defer rows.Close()

	var stakes []domain.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stake: %w", err)
		}
		stakes = append(stakes, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stakes rows: %w", err)
	}
	return stakes, nil
}

// DeleteByArena removes every stake on an arena.
func (s *StakeStore) DeleteByArena(ctx context.Context, arenaID string) error {
	_, err := s.q.Exec(ctx, "DELETE FROM stakes WHERE arena_id = $1", arenaID)
	if err != nil {
		return fmt.Errorf("postgres: delete stakes for %s: %w", arenaID, err)
	}
	return nil
}

func scanStake(row pgx.Row) (domain.Stake, error) {
	var (
		st     domain.Stake
		amount pgtype.Numeric
		side   int16
	)
	err := row.Scan(&st.ArenaID, &st.Owner, &amount, &side, &st.Claimed,
		&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return domain.Stake{}, err
	}
	if st.Amount, err = uint64FromNumeric(amount); err != nil {
		return domain.Stake{}, err
	}
	st.Side = domain.Side(side)
	return st, nil
}
