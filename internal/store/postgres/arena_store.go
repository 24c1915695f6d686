package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/soliseum/arenad/internal/domain"
)

// ArenaStore implements domain.ArenaStore using PostgreSQL.
type ArenaStore struct {
	q querier
}

const arenaCols = `id, creator, oracle_1, oracle_2, oracle_3, threshold,
	total_pool, pool_a, pool_b, status, winner, fee_bps,
	settlement_nonce, created_at, updated_at`

// Create inserts a new arena.
func (s *ArenaStore) Create(ctx context.Context, a domain.Arena) error {
	const query = `
		INSERT INTO arenas (
			id, creator, oracle_1, oracle_2, oracle_3, threshold,
			total_pool, pool_a, pool_b, status, winner, fee_bps,
			settlement_nonce, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15
		)`

	_, err := s.q.Exec(ctx, query,
		a.ID, a.Creator,
		a.Oracles[0][:], a.Oracles[1][:], a.Oracles[2][:], int16(a.Threshold),
		numericFromUint64(a.TotalPool), numericFromUint64(a.PoolA), numericFromUint64(a.PoolB),
		string(a.Status), winnerColumn(a.Winner), int32(a.FeeBps),
		int64(a.SettlementNonce), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create arena %s: %w", a.ID, err)
	}
	return nil
}

// Get retrieves an arena by id, locking the row for the remainder of the
// transaction so concurrent operations on the same arena serialize.
func (s *ArenaStore) Get(ctx context.Context, id string) (domain.Arena, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+arenaCols+` FROM arenas WHERE id = $1 FOR UPDATE`, id)
	a, err := scanArena(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Arena{}, domain.ErrNotFound
		}
		return domain.Arena{}, fmt.Errorf("postgres: get arena %s: %w", id, err)
	}
	return a, nil
}

// Update persists the full arena state.
func (s *ArenaStore) Update(ctx context.Context, a domain.Arena) error {
	const query = `
		UPDATE arenas SET
			oracle_1         = $2,
			oracle_2         = $3,
			oracle_3         = $4,
			threshold        = $5,
			total_pool       = $6,
			pool_a           = $7,
			pool_b           = $8,
			status           = $9,
			winner           = $10,
			fee_bps          = $11,
			settlement_nonce = $12,
			updated_at       = $13
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		a.ID,
		a.Oracles[0][:], a.Oracles[1][:], a.Oracles[2][:], int16(a.Threshold),
		numericFromUint64(a.TotalPool), numericFromUint64(a.PoolA), numericFromUint64(a.PoolB),
		string(a.Status), winnerColumn(a.Winner), int32(a.FeeBps),
		int64(a.SettlementNonce), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update arena %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns arenas ordered by creation time, newest first.
func (s *ArenaStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Arena, error) {
	query := `SELECT ` + arenaCols + ` FROM arenas ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list arenas: %w", err)
	}
	defer rows.Close()

	var arenas []domain.Arena
	for rows.Next() {
		a, err := scanArena(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arena: %w", err)
		}
		arenas = append(arenas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list arenas rows: %w", err)
	}
	return arenas, nil
}

// scanArena scans a single arena row.
func scanArena(row pgx.Row) (domain.Arena, error) {
	var (
		a               domain.Arena
		oracles         [domain.CommitteeSize][]byte
		threshold       int16
		pools           [3]pgtype.Numeric
		status          string
		winner          *int16
		feeBps          int32
		settlementNonce int64
	)
	err := row.Scan(
		&a.ID, &a.Creator,
		&oracles[0], &oracles[1], &oracles[2], &threshold,
		&pools[0], &pools[1], &pools[2],
		&status, &winner, &feeBps,
		&settlementNonce, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Arena{}, err
	}

	for i, raw := range oracles {
		if len(raw) != domain.PublicKeySize {
			return domain.Arena{}, fmt.Errorf("oracle %d key is %d bytes", i, len(raw))
		}
		copy(a.Oracles[i][:], raw)
	}
	if a.TotalPool, err = uint64FromNumeric(pools[0]); err != nil {
		return domain.Arena{}, err
	}
	if a.PoolA, err = uint64FromNumeric(pools[1]); err != nil {
		return domain.Arena{}, err
	}
	if a.PoolB, err = uint64FromNumeric(pools[2]); err != nil {
		return domain.Arena{}, err
	}
	a.Threshold = uint8(threshold)
	a.Status = domain.ArenaStatus(status)
	a.FeeBps = uint16(feeBps)
	a.SettlementNonce = uint64(settlementNonce)
	if winner != nil {
		w := domain.Side(*winner)
		a.Winner = &w
	}
	return a, nil
}

func winnerColumn(w *domain.Side) *int16 {
	if w == nil {
		return nil
	}
	v := int16(*w)
	return &v
}
