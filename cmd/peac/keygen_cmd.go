package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peacprotocol/peac-core/pkg/crypto"
)

// runKeygenCmd implements `peac keygen`: generates an Ed25519 keypair
// and a kid, writing the private key (for an issuer's KeyRing) and the
// public JWK (for publishing at an issuer's JWKS endpoint) to separate
// files.
//
// Exit codes: 0 = success, 2 = usage/runtime error.
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		kid       string
		outPriv   string
		outPub    string
		keyDir    string
		jsonOut   bool
	)
	cmd.StringVar(&kid, "kid", "", "Key ID to assign (default: random)")
	cmd.StringVar(&outPriv, "out-private", "", "Write the private key to this file (base64url, raw Ed25519 seed+pub)")
	cmd.StringVar(&outPub, "out-jwks", "", "Write the public JWK set to this file")
	cmd.StringVar(&keyDir, "key-dir", "", "Also persist the key as <key-dir>/<kid>.key for a SoftHSM-backed issuer (see `peac issue --key-dir`)")
	cmd.BoolVar(&jsonOut, "json", false, "Print the generated key material as JSON to stdout")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if kid == "" {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			fmt.Fprintf(stderr, "Error: generate kid: %v\n", err)
			return 2
		}
		kid = base64.RawURLEncoding.EncodeToString(buf[:])
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 2
	}

	privB64 := base64.RawURLEncoding.EncodeToString(priv)
	pubB64 := base64.RawURLEncoding.EncodeToString(pub)

	if outPriv != "" {
		if err := os.WriteFile(outPriv, []byte(kid+":"+privB64+"\n"), 0o600); err != nil {
			fmt.Fprintf(stderr, "Error: write private key: %v\n", err)
			return 2
		}
	}

	if keyDir != "" {
		hsm, err := crypto.NewSoftHSM(keyDir)
		if err != nil {
			fmt.Fprintf(stderr, "Error: open key dir: %v\n", err)
			return 2
		}
		if err := hsm.Persist(kid, priv); err != nil {
			fmt.Fprintf(stderr, "Error: persist key to key dir: %v\n", err)
			return 2
		}
	}

	if outPub != "" {
		jwks := map[string]any{
			"keys": []map[string]any{
				{"kty": "OKP", "crv": "Ed25519", "kid": kid, "x": pubB64},
			},
		}
		data, _ := json.MarshalIndent(jwks, "", "  ")
		if err := os.WriteFile(outPub, data, 0o644); err != nil {
			fmt.Fprintf(stderr, "Error: write JWKS: %v\n", err)
			return 2
		}
	}

	if jsonOut {
		data, _ := json.MarshalIndent(map[string]string{
			"kid":        kid,
			"private_key": privB64,
			"public_key":  pubB64,
		}, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "kid: %s\n", kid)
		fmt.Fprintf(stdout, "public key: %s\n", pubB64)
		if outPriv != "" {
			fmt.Fprintf(stdout, "private key written to %s\n", outPriv)
		}
		if outPub != "" {
			fmt.Fprintf(stdout, "JWKS written to %s\n", outPub)
		}
		if keyDir != "" {
			fmt.Fprintf(stdout, "key persisted to %s\n", keyDir)
		}
	}

	return 0
}
