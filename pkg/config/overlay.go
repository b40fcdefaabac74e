package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay is a YAML gateway configuration file that overrides the
// environment-derived defaults from Load. Every field is optional; a zero
// value leaves the environment-derived Config value untouched.
type Overlay struct {
	Port     string `yaml:"port,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`

	IssuerAllowlist []string `yaml:"issuer_allowlist,omitempty"`
	BypassPaths     []string `yaml:"bypass_paths,omitempty"`
	TrustProxy      *bool    `yaml:"trust_proxy,omitempty"`

	ReplayBackend string `yaml:"replay_backend,omitempty"`
	ReplayDSN     string `yaml:"replay_dsn,omitempty"`

	AnonymousRateLimit int `yaml:"anonymous_rate_limit,omitempty"`
	KeyedRateLimit     int `yaml:"keyed_rate_limit,omitempty"`

	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// LoadOverlayFile reads and parses a YAML gateway config overlay from path.
func LoadOverlayFile(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read overlay %s: %w", path, err)
	}

	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("config: parse overlay %s: %w", path, err)
	}
	return &overlay, nil
}

// applyTo overlays non-zero fields onto cfg in place.
func (o *Overlay) applyTo(cfg *Config) {
	if o.Port != "" {
		cfg.Port = o.Port
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if len(o.IssuerAllowlist) > 0 {
		cfg.IssuerAllowlist = o.IssuerAllowlist
	}
	if len(o.BypassPaths) > 0 {
		cfg.BypassPaths = o.BypassPaths
	}
	if o.TrustProxy != nil {
		cfg.TrustProxy = *o.TrustProxy
	}
	if o.ReplayBackend != "" {
		cfg.ReplayBackend = o.ReplayBackend
	}
	if o.ReplayDSN != "" {
		cfg.ReplayDSN = o.ReplayDSN
	}
	if o.AnonymousRateLimit != 0 {
		cfg.AnonymousRateLimit = o.AnonymousRateLimit
	}
	if o.KeyedRateLimit != 0 {
		cfg.KeyedRateLimit = o.KeyedRateLimit
	}
	if o.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = o.OTLPEndpoint
	}
}
