package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/peacprotocol/peac-core/pkg/config"
	"github.com/peacprotocol/peac-core/pkg/gateway"
	"github.com/peacprotocol/peac-core/pkg/jwks"
	"github.com/peacprotocol/peac-core/pkg/observability"
	"github.com/peacprotocol/peac-core/pkg/ratelimit"
	"github.com/peacprotocol/peac-core/pkg/replay"
	"github.com/peacprotocol/peac-core/pkg/verifier"
)

// runGatewayCmd implements `peac gateway serve`: wires the verifier,
// rate limiter, and replay store named by the process's Config into a
// running edge gateway, mirroring the teacher's runServer's
// infrastructure-then-kernel-then-listen shape.
//
// Exit codes: 0 = clean shutdown, 2 = fatal startup error.
func runGatewayCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || (args[0] != "serve" && args[0][0] != '-') {
		fmt.Fprintln(stderr, "Usage: peac gateway serve [--overlay <file>]")
		return 2
	}
	if len(args) > 0 && args[0] == "serve" {
		args = args[1:]
	}

	cmd := flag.NewFlagSet("gateway serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var overlayPath string
	cmd.StringVar(&overlayPath, "overlay", "", "Optional YAML gateway config overlay")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadWithOverlay(overlayPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return 2
	}

	ctx := context.Background()
	logger := slog.Default().With("component", "gateway")

	provider, err := observability.New(ctx, &observability.Config{
		ServiceName:  "peac-gateway",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEndpoint != "",
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: init observability: %v\n", err)
		return 2
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	replayStore, err := buildReplayStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: build replay store: %v\n", err)
		return 2
	}

	resolver := jwks.NewResolver(http.DefaultClient)
	v := verifier.New(resolver, replayStore)

	limiter := ratelimit.NewLocalLimiter(float64(cfg.KeyedRateLimit)/60.0, cfg.KeyedRateLimit)
	defer limiter.Close()

	gw := gateway.New(gateway.Config{
		BypassPaths: cfg.BypassPaths,
		Verifier:    v,
		VerifyPolicy: func(resource string) verifier.Policy {
			return verifier.Policy{
				AllowedIssuers: cfg.IssuerAllowlist,
				AllowAnyIssuer: cfg.UnsafeAllowAnyIssuer,
				RequireExp:     true,
				Resource:       resource,
			}
		},
		Limiter: limiter,
		AnonymousKeyFor: func(r *http.Request) string {
			return gateway.ClientIP(r, cfg.TrustProxy)
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/", gw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		logger.InfoContext(ctx, "gateway listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] serve error: %v", err)
		}
	}()

	fmt.Fprintf(stdout, "peac gateway listening on :%s (ctrl+c to stop)\n", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.InfoContext(ctx, "gateway shutting down")
	_ = srv.Shutdown(ctx)
	return 0
}

// buildReplayStore selects the replay backend named by cfg.ReplayBackend.
func buildReplayStore(cfg *config.Config) (replay.Store, error) {
	switch cfg.ReplayBackend {
	case "memory", "":
		return replay.NewMemoryStore(), nil
	case "noop":
		return replay.NewNoOpStore()
	default:
		return nil, fmt.Errorf("unsupported PEAC_REPLAY_BACKEND %q for in-process gateway (use memory or noop; wire postgres/redis/sqlite via your own main)", cfg.ReplayBackend)
	}
}
