package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/peacprotocol/peac-core/pkg/jwks"
)

// runJWKSCmd dispatches `peac jwks <get|serve>`.
func runJWKSCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: peac jwks <get|serve> [flags]")
		return 2
	}
	switch args[0] {
	case "get":
		return runJWKSGetCmd(args[1:], stdout, stderr)
	case "serve":
		return runJWKSServeCmd(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown jwks subcommand: %s\n", args[0])
		return 2
	}
}

// runJWKSGetCmd resolves a single (issuer, kid) pair through the
// discovery+cache+SSRF-guard resolver and prints the result.
func runJWKSGetCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("jwks get", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var issuerURL, kid string
	cmd.StringVar(&issuerURL, "issuer", "", "Issuer base URL (REQUIRED)")
	cmd.StringVar(&kid, "kid", "", "Key ID to resolve (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if issuerURL == "" || kid == "" {
		fmt.Fprintln(stderr, "Error: --issuer and --kid are required")
		return 2
	}

	resolver := jwks.NewResolver(http.DefaultClient)
	result, err := resolver.Resolve(context.Background(), issuerURL, kid)
	if err != nil {
		fmt.Fprintf(stderr, "Error: resolve %s/%s: %v\n", issuerURL, kid, err)
		return 1
	}

	data, _ := json.MarshalIndent(map[string]any{
		"issuer":     issuerURL,
		"kid":        kid,
		"public_key": result.PublicKey,
		"stale":      result.Stale,
	}, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return 0
}

// runJWKSServeCmd serves a JWKS document produced by `peac keygen` over
// HTTP at /.well-known/jwks and /.well-known/jwks.json, two of the three
// discovery paths pkg/jwks probes (the single-key /keys path is not
// served), for local testing of an issuer's key-publication endpoint.
func runJWKSServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("jwks serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var listen, jwksFile string
	cmd.StringVar(&listen, "listen", ":8090", "Address to listen on")
	cmd.StringVar(&jwksFile, "jwks-file", "", "Path to the JWKS document to serve (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if jwksFile == "" {
		fmt.Fprintln(stderr, "Error: --jwks-file is required")
		return 2
	}

	body, err := os.ReadFile(jwksFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: read --jwks-file: %v\n", err)
		return 2
	}

	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=300")
		_, _ = w.Write(body)
	}
	mux.HandleFunc("/.well-known/jwks", handler)
	mux.HandleFunc("/.well-known/jwks.json", handler)

	fmt.Fprintf(stdout, "serving %s on %s\n", jwksFile, listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
