package crypto

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/soliseum/arenad/internal/domain"
)

func TestNewSignerRoundTrip(t *testing.T) {
	generated, err := GenerateSigner()
	require.NoError(t, err)

	restored, err := NewSigner(generated.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, generated.PublicKey(), restored.PublicKey())
	require.Equal(t, generated.Address(), restored.Address())

	prefixed, err := NewSigner("0x" + generated.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, generated.PublicKey(), prefixed.PublicKey())
}

func TestNewSignerRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "zz", "0xdeadbeef", "0x"} {
		_, err := NewSigner(in)
		require.Error(t, err, "input %q", in)
	}
}

func TestSignerPublicKeyIsCompressed(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	pub := signer.PublicKey()
	require.False(t, pub.IsZero())
	// Compressed secp256k1 keys start with 02 or 03.
	require.Contains(t, []byte{0x02, 0x03}, pub[0])

	parsed, err := domain.ParsePublicKey(pub.Hex())
	require.NoError(t, err)
	require.Equal(t, pub, parsed)
}

func TestSignMessage(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	msg := []byte("settle-payload")
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub := signer.PublicKey()
	digest := ethcrypto.Keccak256(msg)
	require.True(t, ethcrypto.VerifySignature(pub[:], digest, sig[:64]))

	// Signing over the digest, not the raw message.
	require.False(t, ethcrypto.VerifySignature(pub[:], ethcrypto.Keccak256([]byte("other")), sig[:64]))
}
