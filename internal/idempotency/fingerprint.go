package idempotency

import (
	"crypto/sha256"
	"encoding/hex"

	"ledgercore/internal/apperr"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Fingerprint canonicalizes a JSON request body — sorted object keys,
// collapsed whitespace — before hashing, so two byte-for-byte-different
// encodings of the same value (re-ordered fields, pretty-printed vs
// minified) produce the same fingerprint. §4.6 requires that a replayed
// Idempotency-Key be rejected only when the underlying request actually
// differs, not when a client merely re-serializes it.
func Fingerprint(body []byte) (string, error) {
	if len(body) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	if !gjson.ValidBytes(body) {
		return "", apperr.New(apperr.Validation, "request body is not valid JSON")
	}
	canonical := pretty.Ugly(pretty.PrettyOptions(body, &pretty.Options{SortKeys: true}))
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
