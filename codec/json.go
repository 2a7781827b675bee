package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// IsJSON reports whether s is valid JSON holding an object or an array.
// Bare numbers, booleans, strings and null are not treated as JSON so that
// plain payloads such as "123" or "true" are never decoded twice.
func IsJSON(s string) bool {
	if !gjson.Valid(s) {
		return false
	}
	r := gjson.Parse(s)
	return r.IsObject() || r.IsArray()
}

// Raw is a value already in wire form. Encode sends it unchanged, which is
// what a server-side INCR or a plain text payload needs.
type Raw string

// Encode renders v as JSON for transmission. Strings are quoted like any
// other value so that they read back as strings; only Raw skips encoding.
func Encode(v any) (string, error) {
	if r, ok := v.(Raw); ok {
		return string(r), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(b), nil
}

// Decode is the lenient decoder applied to replies. Strings holding a JSON
// object or array are decoded, anything else is returned unchanged.
func Decode(raw any) any {
	s, ok := raw.(string)
	if !ok || !IsJSON(s) {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return raw
	}
	return v
}

// DecodeInto decodes raw into dst, which must be a non-nil pointer.
//
// Unlike Decode it fails when a syntactically valid JSON object or array does
// not fit dst. For a *string destination a JSON string literal is unquoted and
// any other scalar payload is assigned verbatim.
func DecodeInto(raw any, dst any) error {
	switch t := raw.(type) {
	case string:
		if p, ok := dst.(*string); ok && !IsJSON(t) {
			if err := json.Unmarshal([]byte(t), p); err != nil {
				*p = t
			}
			return nil
		}
		return errors.WithStack(json.Unmarshal([]byte(t), dst))
	case []byte:
		return DecodeInto(string(t), dst)
	}
	// integers, already decoded lists and maps
	b, err := json.Marshal(raw)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(json.Unmarshal(b, dst))
}
