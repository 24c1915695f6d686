package consensus

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/soliseum/arenad/internal/domain"
)

// IndexedSignature pairs an oracle committee index with that oracle's
// signature over the operation message.
type IndexedSignature struct {
	Index     uint8  `json:"index"`
	Signature []byte `json:"signature"`
}

// SignatureVerifier checks one asymmetric signature. It is injected so the
// committee verification algorithm stays a pure function of its inputs and
// tests can substitute deterministic verifiers.
type SignatureVerifier interface {
	// Verify reports whether sig was produced by the private key matching
	// pub, over exactly msg.
	Verify(pub domain.PublicKey, msg, sig []byte) bool
}

// VerifyCommittee validates a threshold signature set against an oracle
// committee and message.
//
// Checks run in input order: the set must be at least threshold long, every
// index must be in committee range and appear at most once, and every
// supplied signature must verify. There is no early exit at the threshold
// count: a caller who only wants to meet the threshold should submit
// exactly threshold signatures, because one bad signature fails the whole
// set.
func VerifyCommittee(
	v SignatureVerifier,
	committee domain.Committee,
	threshold uint8,
	msg []byte,
	sigs []IndexedSignature,
) error {
	if len(sigs) < int(threshold) {
		return fmt.Errorf("%w: got %d, need %d",
			domain.ErrInsufficientSignatures, len(sigs), threshold)
	}

	var seen [domain.CommitteeSize]bool
	for _, s := range sigs {
		if int(s.Index) >= domain.CommitteeSize {
			return fmt.Errorf("%w: index %d", domain.ErrInvalidOracleIndex, s.Index)
		}
		if seen[s.Index] {
			return fmt.Errorf("%w: index %d", domain.ErrDuplicateOracle, s.Index)
		}
		seen[s.Index] = true
		if !v.Verify(committee[s.Index], msg, s.Signature) {
			return fmt.Errorf("%w: oracle %d", domain.ErrInvalidSignature, s.Index)
		}
	}
	return nil
}

// Secp256k1Verifier verifies oracle signatures produced over the keccak256
// digest of the message, the scheme arenactl and the oracle signer use.
// Signatures are the 65-byte [R || S || V] form emitted by go-ethereum's
// crypto.Sign; the recovery byte is ignored during verification. A bare
// 64-byte [R || S] is accepted as well.
type Secp256k1Verifier struct{}

// Verify implements SignatureVerifier.
func (Secp256k1Verifier) Verify(pub domain.PublicKey, msg, sig []byte) bool {
	if len(sig) != 64 && len(sig) != 65 {
		return false
	}
	digest := ethcrypto.Keccak256(msg)
	return ethcrypto.VerifySignature(pub[:], digest, sig[:64])
}

// Compile-time interface check.
var _ SignatureVerifier = Secp256k1Verifier{}
