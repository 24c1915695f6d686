// Command arenactl is the operator tool for oracle key management and
// offline settlement signing. Oracles run it air-gapped from the daemon:
// the signatures it prints are submitted to the API by whoever gathers the
// committee's approvals.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/soliseum/arenad/internal/consensus"
	"github.com/soliseum/arenad/internal/crypto"
	"github.com/soliseum/arenad/internal/domain"
)

const usage = `arenactl - oracle key and signing tool

Usage:
  arenactl keygen
  arenactl encrypt  -key <hex> [-out <path>]
  arenactl sign-settle -arena <uuid> -winner <0|1> -nonce <n>
  arenactl sign-reset  -arena <uuid> -nonce <n>
  arenactl sign-rotate -arena <uuid> -nonce <n> -oracles <hex,hex,hex>

Signing commands read the private key from one of:
  -key <hex>                       raw private key
  -keyfile <path> with ARENACTL_KEY_PASSWORD set   encrypted keystore
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen()
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "sign-settle":
		err = runSignSettle(os.Args[2:])
	case "sign-reset":
		err = runSignReset(os.Args[2:])
	case "sign-rotate":
		err = runSignRotate(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "arenactl: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "arenactl: %v\n", err)
		os.Exit(1)
	}
}

// runKeygen generates a fresh oracle keypair and prints both halves.
func runKeygen() error {
	signer, err := crypto.GenerateSigner()
	if err != nil {
		return err
	}

	fmt.Printf("private_key: %s\n", signer.PrivateKeyHex())
	fmt.Printf("public_key:  %s\n", signer.PublicKey().Hex())
	fmt.Printf("address:     %s\n", signer.Address().Hex())
	return nil
}

// runEncrypt wraps a raw private key in a password-protected keystore file.
func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	keyHex := fs.String("key", "", "raw private key hex")
	out := fs.String("out", "oracle.key.json", "output keystore path")
	fs.Parse(args)

	if *keyHex == "" {
		return fmt.Errorf("encrypt: -key is required")
	}
	password := os.Getenv("ARENACTL_KEY_PASSWORD")
	if password == "" {
		return fmt.Errorf("encrypt: ARENACTL_KEY_PASSWORD must be set")
	}

	blob, err := crypto.EncryptKey(*keyHex, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("encrypt: write keystore: %w", err)
	}

	fmt.Printf("keystore written to %s\n", *out)
	return nil
}

// signFlags holds the flags shared by all signing commands.
type signFlags struct {
	keyHex  string
	keyFile string
	arenaID string
	nonce   uint64
}

func addSignFlags(fs *flag.FlagSet, f *signFlags) {
	fs.StringVar(&f.keyHex, "key", "", "raw private key hex")
	fs.StringVar(&f.keyFile, "keyfile", "", "encrypted keystore path")
	fs.StringVar(&f.arenaID, "arena", "", "arena id (uuid)")
	fs.Uint64Var(&f.nonce, "nonce", 0, "arena settlement nonce")
}

func (f *signFlags) signer() (*crypto.Signer, error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    f.keyHex,
		EncryptedKeyPath: f.keyFile,
		KeyPassword:      os.Getenv("ARENACTL_KEY_PASSWORD"),
	})
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(keyHex)
}

// printSignature emits the signature in the form the settle/reset/rotate
// API endpoints accept.
func printSignature(signer *crypto.Signer, msg []byte) error {
	sig, err := signer.SignMessage(msg)
	if err != nil {
		return err
	}

	fmt.Printf("public_key: %s\n", signer.PublicKey().Hex())
	fmt.Printf("signature:  %s\n", hex.EncodeToString(sig))
	return nil
}

func runSignSettle(args []string) error {
	fs := flag.NewFlagSet("sign-settle", flag.ExitOnError)
	var f signFlags
	addSignFlags(fs, &f)
	winner := fs.Int("winner", -1, "winning side (0 or 1)")
	fs.Parse(args)

	if f.arenaID == "" {
		return fmt.Errorf("sign-settle: -arena is required")
	}
	if *winner != 0 && *winner != 1 {
		return fmt.Errorf("sign-settle: -winner must be 0 or 1")
	}

	signer, err := f.signer()
	if err != nil {
		return err
	}

	msg := consensus.SettleMessage(f.arenaID, domain.Side(*winner), f.nonce)
	return printSignature(signer, msg)
}

func runSignReset(args []string) error {
	fs := flag.NewFlagSet("sign-reset", flag.ExitOnError)
	var f signFlags
	addSignFlags(fs, &f)
	fs.Parse(args)

	if f.arenaID == "" {
		return fmt.Errorf("sign-reset: -arena is required")
	}

	signer, err := f.signer()
	if err != nil {
		return err
	}

	return printSignature(signer, consensus.ResetMessage(f.arenaID, f.nonce))
}

func runSignRotate(args []string) error {
	fs := flag.NewFlagSet("sign-rotate", flag.ExitOnError)
	var f signFlags
	addSignFlags(fs, &f)
	oraclesCSV := fs.String("oracles", "", "comma-separated compressed public keys of the new committee")
	fs.Parse(args)

	if f.arenaID == "" {
		return fmt.Errorf("sign-rotate: -arena is required")
	}

	parts := strings.Split(*oraclesCSV, ",")
	if len(parts) != domain.CommitteeSize {
		return fmt.Errorf("sign-rotate: -oracles needs exactly %d keys", domain.CommitteeSize)
	}
	var committee domain.Committee
	for i, p := range parts {
		key, err := domain.ParsePublicKey(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("sign-rotate: oracle %d: %w", i, err)
		}
		committee[i] = key
	}
	if err := committee.Validate(); err != nil {
		return fmt.Errorf("sign-rotate: %w", err)
	}

	signer, err := f.signer()
	if err != nil {
		return err
	}

	return printSignature(signer, consensus.RotateMessage(f.arenaID, committee, f.nonce))
}
