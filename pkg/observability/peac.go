package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Protocol-specific semantic convention attributes, mirroring the
// attribute-key-plus-constructor-function idiom used for every span this
// module emits.
var (
	AttrIssuer  = attribute.Key("peac.receipt.iss")
	AttrKeyID   = attribute.Key("peac.receipt.kid")
	AttrProfile = attribute.Key("peac.transport.profile")
	AttrCode    = attribute.Key("peac.verify.code")
	AttrRail    = attribute.Key("peac.rail.name")
)

// VerifyOperation creates attributes for a single receipt verification.
func VerifyOperation(issuer, kid, profile, code string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrIssuer.String(issuer),
		AttrKeyID.String(kid),
		AttrProfile.String(profile),
		AttrCode.String(code),
	}
}

// RailOperation creates attributes for a rail adapter call.
func RailOperation(railName string) []attribute.KeyValue {
	return []attribute.KeyValue{AttrRail.String(railName)}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
