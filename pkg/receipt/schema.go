package receipt

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://peacprotocol.org/schemas/receipt-claims.schema.json"

const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["iss", "aud", "iat", "exp", "rid"],
  "properties": {
    "iss": {"type": "string", "minLength": 1},
    "aud": {"type": "string", "minLength": 1},
    "iat": {"type": "integer"},
    "exp": {"type": "integer"},
    "rid": {"type": "string", "minLength": 1},
    "sub": {"type": "string"},
    "nonce": {"type": "string"},
    "amt": {"type": "string"},
    "cur": {"type": "string"},
    "payment": {
      "type": "object",
      "additionalProperties": false,
      "required": ["rail", "reference", "status"],
      "properties": {
        "rail": {"type": "string"},
        "reference": {"type": "string"},
        "amount": {"type": "string"},
        "currency": {"type": "string"},
        "status": {"type": "string"},
        "evidence": {"type": "object"}
      }
    },
    "policy_hash": {"type": "string"},
    "purpose_declared": {"type": "array", "items": {"type": "string"}},
    "purpose_enforced": {"type": "string"},
    "purpose_reason": {"type": "string"},
    "ext": {"type": "object"}
  }
}`

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaDoc)); err != nil {
		panic(fmt.Sprintf("receipt: failed to load claims schema: %v", err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("receipt: failed to compile claims schema: %v", err))
	}
	compiledSchema = compiled
}

// ValidateSchema strictly validates a decoded claims document (as
// map[string]any, since jsonschema validates against Go's generic JSON
// representation rather than the typed Claims struct) against the
// top-level additionalProperties:false schema — this is the sole source
// of E_UNKNOWN_CLAIM and most shapes of E_SCHEMA_VALIDATION_FAILED.
func ValidateSchema(doc map[string]any) error {
	if err := compiledSchema.Validate(doc); err != nil {
		if looksLikeUnknownProperty(err.Error()) {
			return fmt.Errorf("%w", newUnknownClaimError(err))
		}
		return newSchemaError(err)
	}
	return nil
}

func looksLikeUnknownProperty(msg string) bool {
	return strings.Contains(msg, "additionalProperties") || strings.Contains(msg, "additional properties")
}
