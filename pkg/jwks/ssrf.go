package jwks

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var localhostNames = map[string]bool{
	"localhost":              true,
	"localhost.localdomain": true,
	"0.0.0.0":                true,
}

// GuardConfig controls the SSRF checks applied before every network call
// this package makes and before following any URL a response points to
// (pointer URLs, redirect targets).
type GuardConfig struct {
	// AllowInsecureLoopback permits plain-HTTP loopback fetches, for
	// local development only; never set in production.
	AllowInsecureLoopback bool
	// IsAllowedHost is an optional enterprise allowlist callback; when
	// set and it returns false, the host is rejected even if it would
	// otherwise pass the built-in checks.
	IsAllowedHost func(host string) bool
}

// CheckURL validates raw against the SSRF policy: HTTPS-only (unless
// loopback dev mode is explicitly enabled), no literal IP host, no
// localhost variant, and no link-local/metadata address
// (169.254.0.0/16, which includes the cloud metadata IP
// 169.254.169.254). Returns a non-nil error — always treated as a
// non-transient failure by callers — on any violation.
func CheckURL(raw string, cfg GuardConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("jwks: invalid URL %q: %w", raw, err)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("jwks: URL %q has no host", raw)
	}

	isLoopbackHTTP := cfg.AllowInsecureLoopback && u.Scheme == "http" && isLoopbackHost(host)
	if u.Scheme != "https" && !isLoopbackHTTP {
		return fmt.Errorf("jwks: URL %q must use https (got %q)", raw, u.Scheme)
	}

	if localhostNames[strings.ToLower(host)] {
		if !isLoopbackHTTP {
			return fmt.Errorf("jwks: localhost host %q is blocked", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isLoopbackHTTP || !ip.IsLoopback() {
			if err := checkIP(ip); err != nil {
				return err
			}
			// A literal IP is rejected outright outside dev-loopback mode.
			if !isLoopbackHTTP {
				return fmt.Errorf("jwks: literal IP host %q is blocked", host)
			}
		}
	}

	if cfg.IsAllowedHost != nil && !cfg.IsAllowedHost(host) {
		return fmt.Errorf("jwks: host %q rejected by allowlist callback", host)
	}

	return nil
}

func isLoopbackHost(host string) bool {
	if localhostNames[strings.ToLower(host)] {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var metadataRange = func() *net.IPNet {
	_, n, _ := net.ParseCIDR("169.254.0.0/16")
	return n
}()

func checkIP(ip net.IP) error {
	if metadataRange.Contains(ip) {
		return fmt.Errorf("jwks: metadata-range IP %s is blocked", ip)
	}
	return nil
}
