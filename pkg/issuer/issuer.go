// Package issuer composes, signs, and emits PEAC receipts: the
// counterpart to pkg/verifier, which checks them.
package issuer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peacprotocol/peac-core/pkg/canonicalize"
	"github.com/peacprotocol/peac-core/pkg/crypto"
	"github.com/peacprotocol/peac-core/pkg/receipt"
	"github.com/peacprotocol/peac-core/pkg/transport"
)

// maxClockSkewSeconds bounds the issuer's own pre-sign sanity check. The
// verifier applies its own iat tolerance, Policy.MaxClockSkew (3600s
// when unset).
const maxClockSkewSeconds = 60

// Uploader publishes a signed JWS to a fetchable URL, returning that URL.
// It is needed whenever the pointer profile is used, whether requested
// or auto-selected for a JWS over 4096 bytes; without an Uploader, Issue
// fails in that case.
type Uploader func(ctx context.Context, jws string) (url string, err error)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Request describes a receipt to be issued. Iss and Aud are required;
// everything else is optional and defaulted.
type Request struct {
	Iss string
	Aud string
	Sub string

	// ExpiresIn defaults to receipt.DefaultTTLSeconds and must not
	// exceed receipt.MaxTTLSeconds.
	ExpiresIn time.Duration

	Nonce string

	Amt string
	Cur string

	Payment *receipt.Payment

	PolicyHash string

	PurposeDeclared []string
	PurposeEnforced string
	PurposeReason   string

	Ext map[string]any

	// Transport selects the emission profile. Empty means auto:
	// header when the signed JWS is small enough, pointer otherwise
	// (requiring an Uploader), never body unless explicitly requested.
	Transport transport.Profile
}

// Result is what an issuer hands back to the caller: the claims that
// were signed, the compact JWS, the kid used, and how to carry it.
type Result struct {
	Claims   *receipt.Claims
	JWS      string
	KeyID    string
	Profile  transport.Profile
	Pointer  *transport.Pointer
	BodyDoc  map[string]any
}

// Issuer signs receipts using a KeyRing and emits them per the
// requested (or auto-selected) transport profile.
type Issuer struct {
	keys     *crypto.KeyRing
	uploader Uploader
	clock    Clock
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithUploader supplies the function used to publish a JWS when the
// pointer transport profile is selected or requested.
func WithUploader(u Uploader) Option {
	return func(i *Issuer) { i.uploader = u }
}

// WithClock overrides the issuer's notion of "now", for tests.
func WithClock(c Clock) Option {
	return func(i *Issuer) { i.clock = c }
}

// New constructs an Issuer backed by keys.
func New(keys *crypto.KeyRing, opts ...Option) *Issuer {
	i := &Issuer{keys: keys, clock: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue normalizes req, composes claims, validates, canonicalizes,
// signs, and emits a receipt.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Result, error) {
	iss, err := receipt.NormalizeOrigin(req.Iss)
	if err != nil {
		return nil, fmt.Errorf("issuer: iss: %w", err)
	}
	aud, err := receipt.NormalizeOrigin(req.Aud)
	if err != nil {
		return nil, fmt.Errorf("issuer: aud: %w", err)
	}

	ttl := req.ExpiresIn
	if ttl <= 0 {
		ttl = time.Duration(receipt.DefaultTTLSeconds) * time.Second
	}
	ttlSeconds := int64(ttl / time.Second)
	if err := receipt.CheckTTLWithinLimit(ttlSeconds); err != nil {
		return nil, err
	}

	now := i.clock().Unix()
	iat := now
	exp := iat + ttlSeconds
	if err := receipt.CheckTimeBounds(now, iat, exp, maxClockSkewSeconds); err != nil {
		return nil, err
	}

	rid, err := newRid()
	if err != nil {
		return nil, fmt.Errorf("issuer: generating rid: %w", err)
	}

	claims := &receipt.Claims{
		Iss:             iss,
		Aud:             aud,
		Iat:             iat,
		Exp:             exp,
		Rid:             rid,
		Sub:             req.Sub,
		Nonce:           req.Nonce,
		Amt:             req.Amt,
		Cur:             req.Cur,
		Payment:         req.Payment,
		PolicyHash:      req.PolicyHash,
		PurposeDeclared: req.PurposeDeclared,
		PurposeEnforced: req.PurposeEnforced,
		PurposeReason:   req.PurposeReason,
		Ext:             req.Ext,
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("issuer: marshaling claims: %w", err)
	}
	if _, err := receipt.Validate(raw); err != nil {
		return nil, fmt.Errorf("issuer: composed claims failed validation: %w", err)
	}

	canonical, err := canonicalize.JCSBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("issuer: canonicalizing claims: %w", err)
	}

	jws, kid, err := i.keys.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("issuer: signing: %w", err)
	}

	result := &Result{Claims: claims, JWS: jws, KeyID: kid}
	if err := i.emit(ctx, req.Transport, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (i *Issuer) emit(ctx context.Context, requested transport.Profile, result *Result) error {
	profile := requested
	if profile == "" {
		if len(result.JWS) <= 4096 {
			profile = transport.ProfileHeader
		} else {
			profile = transport.ProfilePointer
		}
	}

	switch profile {
	case transport.ProfileHeader:
		result.Profile = transport.ProfileHeader
		return nil
	case transport.ProfileBody:
		result.Profile = transport.ProfileBody
		result.BodyDoc = map[string]any{"peac_receipt": result.JWS}
		return nil
	case transport.ProfilePointer:
		if i.uploader == nil {
			return fmt.Errorf("issuer: pointer transport requested but no Uploader configured")
		}
		url, err := i.uploader(ctx, result.JWS)
		if err != nil {
			return fmt.Errorf("issuer: uploading receipt for pointer transport: %w", err)
		}
		sum := sha256.Sum256([]byte(result.JWS))
		result.Profile = transport.ProfilePointer
		result.Pointer = &transport.Pointer{
			Alg:    "sha256",
			Digest: hex.EncodeToString(sum[:]),
			URL:    url,
		}
		return nil
	default:
		return fmt.Errorf("issuer: unknown transport profile %q", profile)
	}
}

func newRid() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
