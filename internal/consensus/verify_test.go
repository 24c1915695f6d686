package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soliseum/arenad/internal/crypto"
	"github.com/soliseum/arenad/internal/domain"
)

// committeeFixture is three freshly generated oracle keypairs in committee
// order.
type committeeFixture struct {
	committee domain.Committee
	signers   [domain.CommitteeSize]*crypto.Signer
}

func newCommitteeFixture(t *testing.T) committeeFixture {
	t.Helper()
	var f committeeFixture
	for i := range f.signers {
		signer, err := crypto.GenerateSigner()
		require.NoError(t, err)
		f.signers[i] = signer
		f.committee[i] = signer.PublicKey()
	}
	return f
}

func (f committeeFixture) sign(t *testing.T, msg []byte, indexes ...uint8) []IndexedSignature {
	t.Helper()
	sigs := make([]IndexedSignature, 0, len(indexes))
	for _, idx := range indexes {
		sig, err := f.signers[idx].SignMessage(msg)
		require.NoError(t, err)
		sigs = append(sigs, IndexedSignature{Index: idx, Signature: sig})
	}
	return sigs
}

func TestVerifyCommitteeThresholdMet(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := SettleMessage(testArenaID, domain.SideA, 0)

	for _, pair := range [][]uint8{{0, 1}, {0, 2}, {1, 2}, {2, 0}} {
		sigs := f.sign(t, msg, pair...)
		require.NoError(t, VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, sigs))
	}
}

func TestVerifyCommitteeAllThree(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := ResetMessage(testArenaID, 5)

	sigs := f.sign(t, msg, 0, 1, 2)
	require.NoError(t, VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, sigs))
}

func TestVerifyCommitteeInsufficient(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := SettleMessage(testArenaID, domain.SideA, 0)

	err := VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, f.sign(t, msg, 1))
	require.ErrorIs(t, err, domain.ErrInsufficientSignatures)

	err = VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientSignatures)
}

func TestVerifyCommitteeIndexOutOfRange(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := SettleMessage(testArenaID, domain.SideA, 0)

	sigs := f.sign(t, msg, 0, 1)
	sigs[1].Index = 3
	err := VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, sigs)
	require.ErrorIs(t, err, domain.ErrInvalidOracleIndex)
}

func TestVerifyCommitteeDuplicateIndex(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := SettleMessage(testArenaID, domain.SideA, 0)

	// Two valid signatures from the same oracle do not meet a 2-of-3
	// threshold.
	sigs := f.sign(t, msg, 1, 1)
	err := VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, sigs)
	require.ErrorIs(t, err, domain.ErrDuplicateOracle)
}

func TestVerifyCommitteeWrongSigner(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := SettleMessage(testArenaID, domain.SideA, 0)

	// Oracle 1's signature submitted under oracle 2's index.
	sigs := f.sign(t, msg, 0, 1)
	sigs[1].Index = 2
	err := VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, sigs)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyCommitteeWrongMessage(t *testing.T) {
	f := newCommitteeFixture(t)
	signed := SettleMessage(testArenaID, domain.SideA, 0)
	verified := SettleMessage(testArenaID, domain.SideB, 0)

	err := VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, verified, f.sign(t, signed, 0, 1))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

// A bad signature beyond the threshold count still fails the whole set. Two
// good signatures plus one garbage one is a rejection, not an approval.
func TestVerifyCommitteeNoEarlyExit(t *testing.T) {
	f := newCommitteeFixture(t)
	msg := SettleMessage(testArenaID, domain.SideA, 0)

	sigs := f.sign(t, msg, 0, 1)
	sigs = append(sigs, IndexedSignature{Index: 2, Signature: make([]byte, 65)})
	err := VerifyCommittee(Secp256k1Verifier{}, f.committee, 2, msg, sigs)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestSecp256k1VerifierSignatureForms(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)

	msg := []byte("attestation payload")
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	v := Secp256k1Verifier{}
	require.True(t, v.Verify(signer.PublicKey(), msg, sig))
	// Bare [R || S] without the recovery byte is accepted too.
	require.True(t, v.Verify(signer.PublicKey(), msg, sig[:64]))

	require.False(t, v.Verify(signer.PublicKey(), msg, sig[:63]))
	require.False(t, v.Verify(signer.PublicKey(), msg, append(sig, 0)))
	require.False(t, v.Verify(signer.PublicKey(), []byte("other payload"), sig))

	tampered := make([]byte, len(sig))
	copy(tampered, sig)
	tampered[10] ^= 0xff
	require.False(t, v.Verify(signer.PublicKey(), msg, tampered))
}
