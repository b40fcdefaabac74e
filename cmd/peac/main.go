// Command peac is the reference CLI for the protocol: generate signing
// keys, issue and verify receipts, resolve JWKS entries, discover policy
// descriptors, run the conformance harness, and serve the edge gateway.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "issue":
		return runIssueCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "jwks":
		return runJWKSCmd(args[2:], stdout, stderr)
	case "policy":
		return runPolicyCmd(args[2:], stdout, stderr)
	case "conformance", "conform":
		return runConformanceCmd(args[2:], stdout, stderr)
	case "gateway":
		return runGatewayCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "peac — PEAC protocol reference implementation")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  peac <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	printCommand(w, "keygen", "Generate an Ed25519 signing keypair")
	printCommand(w, "issue", "Issue and sign a receipt")
	printCommand(w, "verify", "Verify a receipt against a JWKS or local keyset")
	printCommand(w, "jwks", "Resolve or serve JWKS entries")
	printCommand(w, "policy", "Discover and fingerprint policy descriptors for a resource")
	printCommand(w, "conformance", "Run the fixture-driven conformance harness")
	printCommand(w, "gateway", "Run the edge verification gateway")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-12s %s\n", name, desc)
}
