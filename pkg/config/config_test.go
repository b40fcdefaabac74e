package config_test

import (
	"testing"

	"github.com/peacprotocol/peac-core/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible, fail-closed
// defaults when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PEAC_VERIFY_KEYS", "")
	t.Setenv("ISSUER_ALLOWLIST", "")
	t.Setenv("BYPASS_PATHS", "")
	t.Setenv("PEAC_TRUST_PROXY", "")
	t.Setenv("UNSAFE_ALLOW_ANY_ISSUER", "")
	t.Setenv("UNSAFE_ALLOW_UNKNOWN_TAGS", "")
	t.Setenv("UNSAFE_ALLOW_NO_REPLAY", "")
	t.Setenv("PEAC_REPLAY_BACKEND", "")
	t.Setenv("PEAC_ANON_RATE_LIMIT", "")
	t.Setenv("PEAC_KEYED_RATE_LIMIT", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.ReplayBackend)
	assert.False(t, cfg.TrustProxy)
	assert.False(t, cfg.UnsafeAllowAnyIssuer)
	assert.False(t, cfg.UnsafeAllowUnknownTags)
	assert.False(t, cfg.UnsafeAllowNoReplay)
	assert.Empty(t, cfg.IssuerAllowlist)
	assert.Equal(t, 100, cfg.AnonymousRateLimit)
	assert.Equal(t, 1000, cfg.KeyedRateLimit)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values, including the UNSAFE_* opt-in flags.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ISSUER_ALLOWLIST", "https://issuer-a.example, https://issuer-b.example")
	t.Setenv("BYPASS_PATHS", "/healthz,/metrics")
	t.Setenv("PEAC_TRUST_PROXY", "1")
	t.Setenv("UNSAFE_ALLOW_ANY_ISSUER", "true")
	t.Setenv("PEAC_REPLAY_BACKEND", "redis")
	t.Setenv("PEAC_ANON_RATE_LIMIT", "50")
	t.Setenv("PEAC_KEYED_RATE_LIMIT", "2000")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, []string{"https://issuer-a.example", "https://issuer-b.example"}, cfg.IssuerAllowlist)
	assert.Equal(t, []string{"/healthz", "/metrics"}, cfg.BypassPaths)
	assert.True(t, cfg.TrustProxy)
	assert.True(t, cfg.UnsafeAllowAnyIssuer)
	assert.Equal(t, "redis", cfg.ReplayBackend)
	assert.Equal(t, 50, cfg.AnonymousRateLimit)
	assert.Equal(t, 2000, cfg.KeyedRateLimit)
}

func TestLoad_UnsafeFlagsDefaultFalse(t *testing.T) {
	t.Setenv("UNSAFE_ALLOW_ANY_ISSUER", "")
	t.Setenv("UNSAFE_ALLOW_UNKNOWN_TAGS", "")
	t.Setenv("UNSAFE_ALLOW_NO_REPLAY", "")

	cfg := config.Load()

	assert.False(t, cfg.UnsafeAllowAnyIssuer, "fail-closed: must be explicitly opted into")
	assert.False(t, cfg.UnsafeAllowUnknownTags)
	assert.False(t, cfg.UnsafeAllowNoReplay)
}

func TestVerifyKeysJWKS_EmptyWhenUnset(t *testing.T) {
	t.Setenv("PEAC_VERIFY_KEYS", "")
	cfg := config.Load()

	doc, err := cfg.VerifyKeysJWKS()
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestVerifyKeysJWKS_ParsesJSON(t *testing.T) {
	t.Setenv("PEAC_VERIFY_KEYS", `{"keys":[{"kid":"k1","kty":"OKP"}]}`)
	cfg := config.Load()

	doc, err := cfg.VerifyKeysJWKS()
	assert.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Contains(t, doc, "keys")
}
