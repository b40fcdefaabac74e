package verifier

import "errors"

var (
	errEmptyReceipts = errors.New("verifier: parsed carrier has no receipts")
	errMalformedJWS  = errors.New("verifier: malformed compact JWS")
	errMissingIss    = errors.New("verifier: payload is missing iss")
)
