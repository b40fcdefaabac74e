package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds gateway process configuration: listen address, the
// verify-time policy knobs the UNSAFE_* flags gate, and the rate-limit
// and storage backends the gateway wires at startup.
type Config struct {
	Port     string
	LogLevel string

	// VerifyKeysJSON is a JWKS document (set of Ed25519 public keys) used
	// for local/offline verification instead of a remote JWKS fetch.
	VerifyKeysJSON string
	// TrustedIssuersJSON maps issuer -> JWKS URL overrides.
	TrustedIssuersJSON string
	// IssuerAllowlist restricts accepted receipt issuers; empty means any
	// issuer is accepted only if UnsafeAllowAnyIssuer is also set.
	IssuerAllowlist []string
	// BypassPaths are gateway paths that skip verification entirely.
	BypassPaths []string

	// TrustProxy, when true, derives the rate-limit identity from
	// X-Forwarded-For/CF-Connecting-IP instead of the socket peer IP.
	TrustProxy bool

	// UnsafeAllowAnyIssuer disables the issuer allowlist check. Fail-closed
	// by default; must be explicitly opted into.
	UnsafeAllowAnyIssuer bool
	// UnsafeAllowUnknownTags disables the extension-key strictness check
	// on receipt claims.
	UnsafeAllowUnknownTags bool
	// UnsafeAllowNoReplay disables the replay store check entirely.
	UnsafeAllowNoReplay bool

	// ReplayBackend selects the replay store: "memory", "postgres",
	// "redis", "sqlite", or "noop".
	ReplayBackend string
	ReplayDSN     string

	// AnonymousRateLimit and KeyedRateLimit are requests/minute.
	AnonymousRateLimit int
	KeyedRateLimit     int

	OTLPEndpoint string
}

// Load builds a Config from environment variables, applying safe,
// fail-closed defaults for anything unset.
func Load() *Config {
	cfg := &Config{
		Port:                   getEnvDefault("PORT", "8080"),
		LogLevel:               getEnvDefault("LOG_LEVEL", "INFO"),
		VerifyKeysJSON:         os.Getenv("PEAC_VERIFY_KEYS"),
		TrustedIssuersJSON:     os.Getenv("PEAC_TRUSTED_ISSUERS_JSON"),
		IssuerAllowlist:        splitCommaList(os.Getenv("ISSUER_ALLOWLIST")),
		BypassPaths:            splitCommaList(os.Getenv("BYPASS_PATHS")),
		TrustProxy:             os.Getenv("PEAC_TRUST_PROXY") == "1",
		UnsafeAllowAnyIssuer:   os.Getenv("UNSAFE_ALLOW_ANY_ISSUER") == "true",
		UnsafeAllowUnknownTags: os.Getenv("UNSAFE_ALLOW_UNKNOWN_TAGS") == "true",
		UnsafeAllowNoReplay:    os.Getenv("UNSAFE_ALLOW_NO_REPLAY") == "true",
		ReplayBackend:          getEnvDefault("PEAC_REPLAY_BACKEND", "memory"),
		ReplayDSN:              os.Getenv("PEAC_REPLAY_DSN"),
		AnonymousRateLimit:     getEnvInt("PEAC_ANON_RATE_LIMIT", 100),
		KeyedRateLimit:         getEnvInt("PEAC_KEYED_RATE_LIMIT", 1000),
		OTLPEndpoint:           getEnvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
	return cfg
}

// LoadWithOverlay calls Load and, if path is non-empty, overlays a YAML
// gateway config file on top of the environment-derived defaults. Values
// present in the overlay take precedence; zero values in the overlay
// leave the environment-derived value untouched.
func LoadWithOverlay(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	overlay, err := LoadOverlayFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load overlay: %w", err)
	}
	overlay.applyTo(cfg)
	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCommaList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// VerifyKeysJWKS unmarshals VerifyKeysJSON into a generic JWKS document,
// returning nil if unset.
func (c *Config) VerifyKeysJWKS() (map[string]any, error) {
	if c.VerifyKeysJSON == "" {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(c.VerifyKeysJSON), &doc); err != nil {
		return nil, fmt.Errorf("config: parse PEAC_VERIFY_KEYS: %w", err)
	}
	return doc, nil
}
