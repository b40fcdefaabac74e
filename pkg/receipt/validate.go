package receipt

import (
	"encoding/json"
	"fmt"
)

// Validate runs strict schema validation followed by the structural
// invariants (payment/amt/cur consistency, extension-key versioning) that
// the schema alone cannot express. It does not perform time-bound or
// purpose checks — those need a caller-supplied now/skew/expected-purpose
// and are run separately via CheckTimeBounds/CheckPurpose so issuance and
// verification can apply them at the right point in their pipelines.
func Validate(raw json.RawMessage) (*Claims, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("receipt: claims are not valid JSON: %w", err)
	}
	if err := ValidateSchema(doc); err != nil {
		return nil, err
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, newSchemaError(err)
	}

	if claims.Exp <= claims.Iat {
		return nil, fmt.Errorf("receipt: invariant violated: exp (%d) must be greater than iat (%d)", claims.Exp, claims.Iat)
	}
	if err := CheckPaymentConsistency(&claims); err != nil {
		return nil, err
	}
	if err := CheckExtensionKeys(claims.Ext); err != nil {
		return nil, err
	}

	return &claims, nil
}
