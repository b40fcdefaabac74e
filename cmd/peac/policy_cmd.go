package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"

	"github.com/peacprotocol/peac-core/pkg/policy"
)

// runPolicyCmd implements `peac policy discover`: fetches and
// fingerprints the policy descriptors published for a resource
// (peac.txt, aipref, agent-permissions), so an operator can check what
// policy_hash a receipt for that resource is expected to carry.
//
// Exit codes: 0 = success, 2 = usage/runtime error.
func runPolicyCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "discover" {
		fmt.Fprintln(stderr, "Usage: peac policy discover --resource <url>")
		return 2
	}

	cmd := flag.NewFlagSet("policy discover", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var resource string
	cmd.StringVar(&resource, "resource", "", "Resource URL to discover policy for (REQUIRED)")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}
	if resource == "" {
		fmt.Fprintln(stderr, "Error: --resource is required")
		return 2
	}

	discoverer := policy.New(http.DefaultClient)
	ctx := context.Background()

	descriptors, err := discoverer.Discover(ctx, resource, policy.Hints{})
	if err != nil {
		fmt.Fprintf(stderr, "Error: discover: %v\n", err)
		return 2
	}

	fingerprint, err := policy.Fingerprint(descriptors)
	if err != nil {
		fmt.Fprintf(stderr, "Error: fingerprint: %v\n", err)
		return 2
	}

	data, _ := json.MarshalIndent(map[string]any{
		"resource":    resource,
		"descriptors": descriptors,
		"policy_hash": fingerprint,
	}, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return 0
}
