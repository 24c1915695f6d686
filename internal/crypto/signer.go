// Package crypto provides oracle key management and attestation signing.
// Oracles sign the keccak256 digest of a consensus message with a secp256k1
// key; the service side verifies with consensus.Secp256k1Verifier.
package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/soliseum/arenad/internal/domain"
)

// Signer produces oracle attestation signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	pub        domain.PublicKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key, with
// or without a 0x prefix.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return newSigner(pk), nil
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generate key: %w", err)
	}
	return newSigner(pk), nil
}

func newSigner(pk *ecdsa.PrivateKey) *Signer {
	var pub domain.PublicKey
	copy(pub[:], ethcrypto.CompressPubkey(&pk.PublicKey))
	return &Signer{
		privateKey: pk,
		pub:        pub,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
}

// PublicKey returns the compressed committee public key for this oracle.
func (s *Signer) PublicKey() domain.PublicKey {
	return s.pub
}

// Address returns the Ethereum-style address derived from the key. Arena
// creators are identified by this address.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the hex-encoded private key, for export to an
// encrypted key file.
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", ethcrypto.FromECDSA(s.privateKey))
}

// SignMessage signs the keccak256 digest of msg and returns the 65-byte
// [R || S || V] signature.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	digest := ethcrypto.Keccak256(msg)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign: %w", err)
	}
	return sig, nil
}
