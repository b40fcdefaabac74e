// Package receipt defines the signed receipt claim set, its strict JSON
// Schema validation, and the time-bound checks shared by issuance and
// verification.
package receipt

// Payment describes the payment evidence attached to a receipt when the
// access being attested to is itself a paid transaction.
type Payment struct {
	Rail      string         `json:"rail"`
	Reference string         `json:"reference"`
	Amount    string         `json:"amount,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	Status    string         `json:"status"`
	Evidence  map[string]any `json:"evidence,omitempty"`
}

// Claims is the signed payload of a receipt, per the protocol's data
// model: issuer/audience binding, validity window, an optional subject,
// optional payment evidence, an optional policy-fingerprint hash,
// purpose attestation, and versioned extensions.
type Claims struct {
	Iss string `json:"iss"`
	Aud string `json:"aud"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
	Rid string `json:"rid"`

	Sub string `json:"sub,omitempty"`

	Nonce string `json:"nonce,omitempty"`

	Amt string `json:"amt,omitempty"`
	Cur string `json:"cur,omitempty"`

	Payment *Payment `json:"payment,omitempty"`

	PolicyHash string `json:"policy_hash,omitempty"`

	PurposeDeclared []string `json:"purpose_declared,omitempty"`
	PurposeEnforced string   `json:"purpose_enforced,omitempty"`
	PurposeReason   string   `json:"purpose_reason,omitempty"`

	Ext map[string]any `json:"ext,omitempty"`
}
