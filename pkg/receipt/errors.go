package receipt

import (
	"fmt"

	"github.com/peacprotocol/peac-core/pkg/problemdetail"
)

func newUnknownClaimError(cause error) *problemdetail.CodedError {
	return problemdetail.Wrap(problemdetail.EUnknownClaim, "claims contain an unrecognized property", cause)
}

func newSchemaError(cause error) *problemdetail.CodedError {
	return problemdetail.Wrap(problemdetail.ESchemaValidationFailed, "claims failed schema validation", cause)
}

func newMissingClaimError(field string) *problemdetail.CodedError {
	return problemdetail.New(problemdetail.EMissingClaim, fmt.Sprintf("missing required claim %q", field))
}

func newExpiredError(now, exp int64) *problemdetail.CodedError {
	return problemdetail.New(problemdetail.EExpiredReceipt, fmt.Sprintf("receipt expired at %d, now %d", exp, now))
}

func newFutureIatError(now, iat, skew int64) *problemdetail.CodedError {
	return problemdetail.New(problemdetail.EFutureIat, fmt.Sprintf("iat %d is more than %ds ahead of now %d", iat, skew, now))
}

func newPurposeInvalidError(expected string) *problemdetail.CodedError {
	return problemdetail.New(problemdetail.EPurposeInvalid, fmt.Sprintf("purpose %q not declared or enforced", expected))
}
