package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peacprotocol/peac-core/pkg/conformance"
	"github.com/peacprotocol/peac-core/pkg/problemdetail"
	"github.com/peacprotocol/peac-core/pkg/receipt"
)

// runConformanceCmd implements `peac conformance run`: loads a fixture
// tree from disk and runs it through the receipt-claims schema
// validator, printing a Report. An --archive-bucket optionally persists
// the report to S3.
//
// Exit codes:
//
//	0 = every fixture matched its expectation
//	1 = at least one fixture failed
//	2 = usage/runtime error
func runConformanceCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "run" {
		fmt.Fprintln(stderr, "Usage: peac conformance run --fixtures <dir> --suite <name>")
		return 2
	}

	cmd := flag.NewFlagSet("conformance run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		fixturesDir    string
		suiteName      string
		implementation string
		jsonOut        bool
		archiveBucket  string
		archivePrefix  string
	)
	cmd.StringVar(&fixturesDir, "fixtures", "", "Directory containing manifest.json and fixture files (REQUIRED)")
	cmd.StringVar(&suiteName, "suite", "schema", "Suite name recorded in the report")
	cmd.StringVar(&implementation, "implementation", "peac-core", "Implementation name recorded in the report")
	cmd.BoolVar(&jsonOut, "json", false, "Print the full Report as JSON")
	cmd.StringVar(&archiveBucket, "archive-bucket", "", "Optional S3 bucket to archive the report to")
	cmd.StringVar(&archivePrefix, "archive-prefix", "conformance/", "S3 key prefix for archived reports")

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}
	if fixturesDir == "" {
		fmt.Fprintln(stderr, "Error: --fixtures is required")
		return 2
	}

	runner := conformance.NewRunner(os.DirFS(fixturesDir), implementation)
	runner.Handle("schema", schemaFixtureHandler)

	report, err := runner.Run(suiteName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: run suite: %v\n", err)
		return 2
	}

	if archiveBucket != "" {
		archive, err := conformance.NewS3Archive(context.Background(), conformance.S3ArchiveConfig{
			Bucket: archiveBucket,
			Prefix: archivePrefix,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: build archive client: %v\n", err)
			return 2
		}
		if err := archive.Put(context.Background(), report); err != nil {
			fmt.Fprintf(stderr, "Error: archive report: %v\n", err)
			return 2
		}
	}

	if jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "%s: %d/%d passed (digest %s)\n",
			report.Suite.Name, report.Summary.Passed, report.Summary.Total, report.Suite.VectorsDigest)
		for _, r := range report.Results {
			if !r.Passed {
				fmt.Fprintf(stdout, "  FAIL %s/%s: %s\n", r.Category, r.Name, r.Detail)
			}
		}
	}

	if report.Summary.Failed > 0 {
		return 1
	}
	return 0
}

// schemaFixtureHandler validates a fixture's claims against the strict
// receipt schema, reporting the problemdetail code on failure.
func schemaFixtureHandler(f *conformance.Fixture) (bool, string, error) {
	doc := f.Payload
	if doc == nil {
		doc = f.Claims
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return false, "", err
	}

	_, err = receipt.Validate(raw)
	if err == nil {
		return true, "", nil
	}

	var coded *problemdetail.CodedError
	if errors.As(err, &coded) {
		return false, string(coded.Code), nil
	}
	return false, "", nil
}
