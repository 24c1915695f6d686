package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/soliseum/arenad/internal/domain"
)

// EscrowStore implements domain.Custody as a double-entry balance ledger.
// A transfer debits and credits in one statement pair inside the caller's
// transaction, so partial moves cannot be observed or committed.
type EscrowStore struct {
	q querier
}

// Transfer moves amount from one account to another. It fails with
// ErrInsufficientFunds when the source balance cannot cover the amount,
// leaving both accounts untouched.
func (s *EscrowStore) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}

	tag, err := s.q.Exec(ctx, `
		UPDATE escrow_accounts SET balance = balance - $2, updated_at = NOW()
		WHERE account = $1 AND balance >= $2`,
		from, numericFromUint64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", domain.ErrInsufficientFunds, from)
	}

	if err := s.Credit(ctx, to, amount); err != nil {
		return err
	}
	return nil
}

// Balance returns the account balance; an account with no row holds zero.
func (s *EscrowStore) Balance(ctx context.Context, account string) (uint64, error) {
	var balance pgtype.Numeric
	err := s.q.QueryRow(ctx,
		"SELECT COALESCE((SELECT balance FROM escrow_accounts WHERE account = $1), 0)",
		account,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return uint64FromNumeric(balance)
}

// Credit adds amount to an account, creating the row if needed.
func (s *EscrowStore) Credit(ctx context.Context, account string, amount uint64) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO escrow_accounts (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET
			balance    = escrow_accounts.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		account, numericFromUint64(amount))
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account, err)
	}
	return nil
}
