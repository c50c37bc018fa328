package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/hkdf"

	"github.com/lastping/lastpingd/internal/principal"
)

const (
	hkdfInfoSigning = "lastping/identity/signing/v1"
	tokenBytes      = 24
)

// deriveIdentity expands a seed into a signing keypair and its principal.
func deriveIdentity(seed []byte) (principal.Principal, ed25519.PrivateKey, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoSigning))
	signingSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, signingSeed); err != nil {
		return principal.Principal{}, nil, err
	}
	priv := ed25519.NewKeyFromSeed(signingSeed)
	pub := priv.Public().(ed25519.PublicKey)
	p, err := principal.FromPublicKey(pub)
	if err != nil {
		return principal.Principal{}, nil, err
	}
	return p, priv, nil
}

func newToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}

func main() {
	name := flag.String("name", "", "label for the generated identity")
	seedHex := flag.String("seed", "", "hex seed for deterministic derivation (32 bytes)")
	flag.Parse()

	var seed []byte
	if strings.TrimSpace(*seedHex) != "" {
		decoded, err := hex.DecodeString(strings.TrimSpace(*seedHex))
		if err != nil || len(decoded) != 32 {
			fmt.Fprintln(os.Stderr, "keygen: -seed must be 32 hex-encoded bytes")
			os.Exit(2)
		}
		seed = decoded
	} else {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
			os.Exit(1)
		}
	}

	p, _, err := deriveIdentity(seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
	token, err := newToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	if *name != "" {
		fmt.Printf("# identity: %s\n", *name)
	}
	fmt.Printf("# seed: %s\n", hex.EncodeToString(seed))
	fmt.Printf("# principal: %s\n", p.Text())
	fmt.Println("[[tokens]]")
	fmt.Printf("token = %q\n", token)
	fmt.Printf("principal = %q\n", p.Text())
}
