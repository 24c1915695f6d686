// Package consensus builds the domain-separated messages oracles sign and
// verifies threshold signature sets against an arena's committee.
package consensus

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/soliseum/arenad/internal/domain"
)

// Operation tags. Each privileged operation signs under a distinct tag so a
// signature for one operation can never authorize another, even at the same
// nonce.
const (
	tagSettle = "settle"
	tagReset  = "reset"
	tagRotate = "update_oracles"
)

// arenaIDBytes returns the 16 raw bytes of the arena's UUID. Arena ids are
// always generated by uuid.New, so a parse failure means corrupted state and
// the zero id is bound instead; verification will then fail loudly rather
// than authorize across arenas.
func arenaIDBytes(arenaID string) [16]byte {
	id, err := uuid.Parse(arenaID)
	if err != nil {
		return [16]byte{}
	}
	return id
}

// appendNonce appends the nonce as 8 little-endian bytes.
func appendNonce(b []byte, nonce uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, nonce)
}

// SettleMessage is the byte payload oracles sign to authorize declaring a
// winner: "settle" || arena_id(16) || winner(1) || nonce(8 LE).
func SettleMessage(arenaID string, winner domain.Side, nonce uint64) []byte {
	id := arenaIDBytes(arenaID)
	b := make([]byte, 0, len(tagSettle)+16+1+8)
	b = append(b, tagSettle...)
	b = append(b, id[:]...)
	b = append(b, byte(winner))
	return appendNonce(b, nonce)
}

// ResetMessage is the byte payload authorizing a pool reset:
// "reset" || arena_id(16) || nonce(8 LE).
func ResetMessage(arenaID string, nonce uint64) []byte {
	id := arenaIDBytes(arenaID)
	b := make([]byte, 0, len(tagReset)+16+8)
	b = append(b, tagReset...)
	b = append(b, id[:]...)
	return appendNonce(b, nonce)
}

// RotateMessage is the byte payload authorizing an oracle committee
// replacement: "update_oracles" || arena_id(16) || key0 || key1 || key2 ||
// nonce(8 LE). The new keys are bound in committee order so a signature
// cannot be reused for a permuted or different committee.
func RotateMessage(arenaID string, newKeys domain.Committee, nonce uint64) []byte {
	id := arenaIDBytes(arenaID)
	b := make([]byte, 0, len(tagRotate)+16+domain.CommitteeSize*domain.PublicKeySize+8)
	b = append(b, tagRotate...)
	b = append(b, id[:]...)
	for _, k := range newKeys {
		b = append(b, k[:]...)
	}
	return appendNonce(b, nonce)
}
