package domain

import "errors"

// Settlement-core errors. Every operation either commits fully or fails with
// one of these; none are retried or downgraded internally.
var (
	// ErrMathOverflow covers checked-arithmetic failures and out-of-range
	// fee or amount parameters.
	ErrMathOverflow = errors.New("math overflow")

	// ErrInvalidArenaState is returned when an operation is attempted in the
	// wrong arena status, a stake side conflicts with a prior wager, or a
	// settled arena is missing a winner.
	ErrInvalidArenaState = errors.New("invalid arena state")

	// ErrAlreadyClaimed is returned on a second claim for the same stake.
	ErrAlreadyClaimed = errors.New("reward already claimed")

	// ErrUnauthorizedOracle is returned when a privileged operation is
	// neither creator-signed nor backed by oracle consensus.
	ErrUnauthorizedOracle = errors.New("unauthorized oracle")

	ErrInsufficientSignatures = errors.New("insufficient signatures")
	ErrDuplicateOracle        = errors.New("duplicate oracle index")
	ErrInvalidOracleIndex     = errors.New("oracle index out of range")
	ErrInvalidOracleConfig    = errors.New("invalid oracle configuration")
	ErrInvalidSignature       = errors.New("invalid oracle signature")

	// ErrInsufficientFunds is returned by the custody ledger when the source
	// account cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Infrastructure errors shared across stores and caches.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
)
