// Package rail defines the payment-rail adapter boundary: a uniform
// Initiate/Confirm/VerifyWebhook/MapEvent surface each payment rail
// implements, plus a Registry that selects among registered rails with a
// deterministic preferred→first-available fallback.
package rail

import (
	"context"
	"errors"

	"github.com/Masterminds/semver/v3"
	"github.com/peacprotocol/peac-core/pkg/receipt"
)

// Money is an exact decimal amount in a given ISO 4217 currency, carried
// as strings end to end so no floating-point rounding ever touches a
// payment amount.
type Money struct {
	Amount   string
	Currency string
}

// PaymentIntent is the rail-agnostic handle Initiate returns; its Raw
// field carries whatever rail-specific data Confirm later needs.
type PaymentIntent struct {
	ID  string
	Raw map[string]any
}

// PaymentResult is what Confirm reports back to the issuer so it can
// attach payment evidence to a receipt.
type PaymentResult struct {
	OK          bool
	Reference   string
	Amount      *Money
	RetryAfterS int
	Error       string
}

// WebhookEvent is a rail's notification, normalized only enough to route
// it; MapEvent turns it into receipt.Payment evidence.
type WebhookEvent struct {
	Type string
	Raw  map[string]any
}

var ErrInvalidSignature = errors.New("rail: invalid webhook signature")

// IdempotencyContext is the input to IdempotencyKey.
type IdempotencyContext struct {
	Resource string
	Purpose  string
	User     string
}

// Rail is the mandatory surface every payment rail adapter implements.
type Rail interface {
	Name() string
	ProtocolVersion() *semver.Version

	Initiate(ctx context.Context, amount Money, context map[string]any) (*PaymentIntent, error)
	Confirm(ctx context.Context, intent *PaymentIntent) (*PaymentResult, error)
	IdempotencyKey(ctx IdempotencyContext) string
	VerifyWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
	MapEvent(event *WebhookEvent) (*receipt.Payment, error)
}

// Refunder is the optional capability a rail may additionally implement.
type Refunder interface {
	Refund(ctx context.Context, reference string, amount *Money) (bool, error)
}
