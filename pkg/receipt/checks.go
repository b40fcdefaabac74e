package receipt

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// MaxTTLSeconds is the hard ceiling on exp-iat the issuer enforces at
// construction time and the verifier re-checks defensively.
const MaxTTLSeconds = 86400

// DefaultTTLSeconds is used when the issuer is not given an explicit
// expires_in.
const DefaultTTLSeconds = 300

// CheckExpiry returns E_EXPIRED_RECEIPT if now is past exp.
func CheckExpiry(now, exp int64) error {
	if now > exp {
		return newExpiredError(now, exp)
	}
	return nil
}

// CheckFutureIat returns E_FUTURE_IAT if iat is more than maxClockSkew
// seconds ahead of now.
func CheckFutureIat(now, iat, maxClockSkew int64) error {
	if iat > now+maxClockSkew {
		return newFutureIatError(now, iat, maxClockSkew)
	}
	return nil
}

// CheckTimeBounds runs both expiry and future-iat checks with the given
// clock skew tolerance, used identically by the issuer (pre-sign sanity)
// and the verifier (post-verify enforcement).
func CheckTimeBounds(now, iat, exp, maxClockSkew int64) error {
	if exp <= iat {
		return fmt.Errorf("receipt: invariant violated: exp (%d) must be greater than iat (%d)", exp, iat)
	}
	if err := CheckFutureIat(now, iat, maxClockSkew); err != nil {
		return err
	}
	return CheckExpiry(now, exp)
}

// CheckTTLWithinLimit rejects a requested TTL before a receipt is ever
// signed; the issuer never emits a receipt whose exp-iat exceeds
// MaxTTLSeconds.
func CheckTTLWithinLimit(ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		return fmt.Errorf("receipt: expires_in must be positive, got %d", ttlSeconds)
	}
	if ttlSeconds > MaxTTLSeconds {
		return fmt.Errorf("receipt: expires_in %ds exceeds max %ds", ttlSeconds, MaxTTLSeconds)
	}
	return nil
}

// extKeyPattern matches the versioned extension-key naming convention,
// e.g. "org.peacprotocol/interaction@0.1".
var extKeyPattern = regexp.MustCompile(`^[a-z0-9.]+/[a-zA-Z0-9_-]+@[0-9]+(\.[0-9]+)*$`)

// CheckExtensionKeys rejects any ext map key that doesn't follow the
// versioned-name convention.
func CheckExtensionKeys(ext map[string]any) error {
	for key := range ext {
		if !extKeyPattern.MatchString(key) {
			return fmt.Errorf("receipt: extension key %q is not versioned (expected reverse-dns/name@version)", key)
		}
	}
	return nil
}

// CheckPaymentConsistency enforces that amt/cur are present iff payment
// is present.
func CheckPaymentConsistency(c *Claims) error {
	hasAmtOrCur := c.Amt != "" || c.Cur != ""
	if c.Payment == nil && hasAmtOrCur {
		return fmt.Errorf("receipt: amt/cur present without payment")
	}
	if c.Payment != nil && !hasAmtOrCur {
		return fmt.Errorf("receipt: payment present without amt/cur")
	}
	return nil
}

// CheckPurpose enforces that expected, when non-empty, appears in
// purpose_declared or equals purpose_enforced.
func CheckPurpose(c *Claims, expected string) error {
	if expected == "" {
		return nil
	}
	if c.PurposeEnforced == expected {
		return nil
	}
	for _, p := range c.PurposeDeclared {
		if p == expected {
			return nil
		}
	}
	return newPurposeInvalidError(expected)
}

// NormalizeOrigin strips a trailing slash and lowercases the host of an
// absolute HTTPS URI, as required for iss/aud before signing or
// comparison. Returns an error if u is not an absolute https:// URI.
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("receipt: invalid origin %q: %w", raw, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("receipt: origin %q must be an absolute https:// URI", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	u.RawQuery = ""
	normalized := u.Scheme + "://" + u.Host + u.Path
	return normalized, nil
}
