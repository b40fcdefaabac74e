package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/peacprotocol/peac-core/pkg/jwks"
	"github.com/peacprotocol/peac-core/pkg/replay"
	"github.com/peacprotocol/peac-core/pkg/verifier"
)

// runVerifyCmd implements `peac verify`: runs the verifier pipeline
// against a receipt carried in a PEAC-Receipt header, against either a
// local JWKS file (offline) or a live issuer (default resolver
// discovery over HTTPS).
//
// Exit codes:
//
//	0 = receipt valid
//	1 = receipt invalid (verifier returned a structured failure)
//	2 = usage/runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jwsArg         string
		jwksFile       string
		issuerAllow    string
		allowAnyIssuer bool
		requireExp     bool
		jsonOut        bool
	)
	cmd.StringVar(&jwsArg, "jws", "", "Compact JWS string, or @path to read it from a file (REQUIRED)")
	cmd.StringVar(&jwksFile, "jwks-file", "", "Path to a local JWKS document for offline verification")
	cmd.StringVar(&issuerAllow, "issuer-allowlist", "", "Comma-separated list of accepted issuers")
	cmd.BoolVar(&allowAnyIssuer, "allow-any-issuer", false, "Accept any issuer (takes effect only when UNSAFE_ALLOW_ANY_ISSUER=true is set)")
	cmd.BoolVar(&requireExp, "require-exp", true, "Require a valid, unexpired exp claim")
	cmd.BoolVar(&jsonOut, "json", false, "Output the verification Result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if jwsArg == "" {
		fmt.Fprintln(stderr, "Error: --jws is required")
		return 2
	}

	jws, err := resolveArg(jwsArg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read --jws: %v\n", err)
		return 2
	}

	var doer jwks.HTTPDoer = http.DefaultClient
	if jwksFile != "" {
		body, err := os.ReadFile(jwksFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: read --jwks-file: %v\n", err)
			return 2
		}
		doer = staticFileDoer{body: body}
	}

	resolver := jwks.NewResolver(doer)
	store := replay.NewMemoryStore()
	v := verifier.New(resolver, store)

	header := http.Header{}
	header.Set("PEAC-Receipt", jws)

	policy := verifier.Policy{
		AllowAnyIssuer: allowAnyIssuer,
		RequireExp:     requireExp,
	}
	if issuerAllow != "" {
		policy.AllowedIssuers = strings.Split(issuerAllow, ",")
	}

	result := v.Verify(context.Background(), header, nil, policy)

	if jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else if result.Valid {
		fmt.Fprintf(stdout, "receipt valid (iss=%s kid=%s)\n", result.Claims.Iss, result.KeyID)
	} else {
		fmt.Fprintf(stdout, "receipt invalid: %s: %s\n", result.Code, result.Message)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

// resolveArg reads arg verbatim, or the contents of a file if arg starts
// with '@', matching the @file convention curl/jq users expect.
func resolveArg(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// staticFileDoer serves the same body for every request, so a local
// JWKS file can stand in for a live issuer endpoint during offline
// verification.
type staticFileDoer struct {
	body []byte
}

func (d staticFileDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(d.body)),
		Header:     http.Header{},
	}, nil
}
