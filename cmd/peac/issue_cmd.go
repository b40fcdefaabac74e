package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peacprotocol/peac-core/pkg/crypto"
	"github.com/peacprotocol/peac-core/pkg/issuer"
	"github.com/peacprotocol/peac-core/pkg/transport"
)

// runIssueCmd implements `peac issue`: composes, signs, and emits a
// receipt using a private key produced by `peac keygen`.
//
// Exit codes: 0 = issued, 2 = usage/runtime error.
func runIssueCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("issue", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		keyFile   string
		keyDir    string
		iss       string
		aud       string
		sub       string
		ttl       time.Duration
		transportFlag string
		policyHash string
		purpose   string
	)
	cmd.StringVar(&keyFile, "key", "", "Path to private key file from `peac keygen` (mutually exclusive with --key-dir)")
	cmd.StringVar(&keyDir, "key-dir", "", "SoftHSM-backed key directory from `peac keygen --key-dir`: loads every persisted kid into the ring, signing with the lexicographically-last (mutually exclusive with --key)")
	cmd.StringVar(&iss, "iss", "", "Issuer URL (REQUIRED)")
	cmd.StringVar(&aud, "aud", "", "Audience URL (REQUIRED)")
	cmd.StringVar(&sub, "sub", "", "Subject identifier")
	cmd.DurationVar(&ttl, "ttl", 5*time.Minute, "Receipt time-to-live")
	cmd.StringVar(&transportFlag, "transport", "", "Emission profile: header|pointer|body (default: auto)")
	cmd.StringVar(&policyHash, "policy-hash", "", "Policy fingerprint to bind")
	cmd.StringVar(&purpose, "purpose", "", "Declared purpose(s), comma-separated")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if (keyFile == "" && keyDir == "") || (keyFile != "" && keyDir != "") {
		fmt.Fprintln(stderr, "Error: exactly one of --key or --key-dir is required")
		return 2
	}
	if iss == "" || aud == "" {
		fmt.Fprintln(stderr, "Error: --iss and --aud are required")
		return 2
	}

	var ring *crypto.KeyRing
	if keyDir != "" {
		hsm, err := crypto.NewSoftHSM(keyDir)
		if err != nil {
			fmt.Fprintf(stderr, "Error: open key dir: %v\n", err)
			return 2
		}
		ring, err = hsm.LoadKeyRing()
		if err != nil {
			fmt.Fprintf(stderr, "Error: load key dir: %v\n", err)
			return 2
		}
	} else {
		var err error
		ring, _, err = loadKeyRing(keyFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: load key: %v\n", err)
			return 2
		}
	}

	iss8 := issuer.New(ring)

	req := issuer.Request{
		Iss:        iss,
		Aud:        aud,
		Sub:        sub,
		ExpiresIn:  ttl,
		PolicyHash: policyHash,
		Transport:  transport.Profile(transportFlag),
	}
	if purpose != "" {
		req.PurposeDeclared = strings.Split(purpose, ",")
	}

	result, err := iss8.Issue(context.Background(), req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: issue receipt: %v\n", err)
		return 2
	}

	data, _ := json.MarshalIndent(map[string]any{
		"jws":     result.JWS,
		"kid":     result.KeyID,
		"profile": result.Profile,
		"claims":  result.Claims,
	}, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return 0
}

// loadKeyRing reads a kid:base64url-private-key line written by
// `peac keygen` and builds a single-key KeyRing from it.
func loadKeyRing(path string) (*crypto.KeyRing, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read key file: %w", err)
	}

	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("malformed key file: expected \"kid:base64key\"")
	}
	kid, b64 := parts[0], parts[1]

	sk, err := decodeB64URLPrivateKey(b64)
	if err != nil {
		return nil, "", fmt.Errorf("decode private key: %w", err)
	}

	ring := crypto.NewKeyRing()
	if err := ring.AddKey(kid, sk); err != nil {
		return nil, "", err
	}
	return ring, kid, nil
}
