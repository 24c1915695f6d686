// Package domain defines the core types of the arena settlement engine and
// the interfaces its collaborators (stores, custody, locks, event bus) must
// implement.
package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// BpsDenominator is the basis-points scale: a fee of 10000 bps is 100%.
const BpsDenominator uint64 = 10_000

// CommitteeSize is the fixed number of oracle keys on every arena.
const CommitteeSize = 3

// DefaultThreshold is the number of distinct oracle signatures required to
// authorize a privileged operation (2-of-3).
const DefaultThreshold uint8 = 2

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = 33

// PublicKey is a compressed secp256k1 oracle public key.
type PublicKey [PublicKeySize]byte

// IsZero reports whether the key is the all-zero (default) key.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// Hex returns the 0x-prefixed hex encoding of the key.
func (k PublicKey) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler so keys serialize as hex in
// JSON payloads and cache entries.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText parses a hex-encoded compressed public key, with or without
// a 0x prefix.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePublicKey decodes a hex-encoded 33-byte compressed public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return k, fmt.Errorf("domain: invalid public key hex: %w", err)
	}
	if len(raw) != PublicKeySize {
		return k, fmt.Errorf("domain: public key must be %d bytes, got %d", PublicKeySize, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// Committee is an ordered oracle committee. The position of a key in the
// array is the oracle index used when submitting signatures.
type Committee [CommitteeSize]PublicKey

// Validate rejects committees containing default (all-zero) or duplicate
// keys. Position matters, so equality is byte-wise.
func (c Committee) Validate() error {
	for i, k := range c {
		if k.IsZero() {
			return fmt.Errorf("%w: oracle %d is the default key", ErrInvalidOracleConfig, i)
		}
		for j := i + 1; j < CommitteeSize; j++ {
			if k == c[j] {
				return fmt.Errorf("%w: oracle %d and %d share a key", ErrInvalidOracleConfig, i, j)
			}
		}
	}
	return nil
}

// Side identifies one of the two outcomes participants can stake on.
type Side uint8

const (
	SideA Side = 0
	SideB Side = 1
)

// Valid reports whether the side is one of the two defined outcomes.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// ArenaStatus represents the lifecycle state of an arena.
type ArenaStatus string

const (
	// ArenaStatusPending is defined for completeness; arenas are created
	// directly in Active and never pass through Pending.
	ArenaStatusPending ArenaStatus = "pending"
	ArenaStatusActive  ArenaStatus = "active"
	ArenaStatusSettled ArenaStatus = "settled"
	// ArenaStatusCancelled is reserved. No operation transitions into it.
	ArenaStatusCancelled ArenaStatus = "cancelled"
)

// Arena is a single two-sided pari-mutuel wagering market.
type Arena struct {
	ID        string      `json:"id"`
	Creator   string      `json:"creator"`
	Oracles   Committee   `json:"oracles"`
	Threshold uint8       `json:"threshold"`
	TotalPool uint64      `json:"total_pool"`
	PoolA     uint64      `json:"pool_a"`
	PoolB     uint64      `json:"pool_b"`
	Status    ArenaStatus `json:"status"`
	Winner    *Side       `json:"winner,omitempty"`
	FeeBps    uint16      `json:"fee_bps"`

	// SettlementNonce increases by one on every successful settle, reset,
	// or oracle rotation. It is bound into every signed oracle message so a
	// signature collected for one authorization can never be replayed.
	SettlementNonce uint64 `json:"settlement_nonce"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pool returns the pool total for one side.
func (a *Arena) Pool(s Side) uint64 {
	if s == SideA {
		return a.PoolA
	}
	return a.PoolB
}

// EscrowAccount returns the custody account that holds an arena's staked
// funds while wagers are open.
func EscrowAccount(arenaID string) string {
	return "escrow:" + arenaID
}
