// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package params

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Set is a string-keyed parameter mapping as delivered by the
// protocol layer. Values are JSON-encoded text. The decoder never
// mutates a Set.
type Set map[string]string

// DecodeError reports that a parameter was present but could not be
// decoded as the requested target type.
type DecodeError struct {
	// Name is the parameter name that failed to decode.
	Name string

	// Type is the Go type the caller requested.
	Type string

	// Err is the underlying parse error.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("parameter %q: decoding as %s: %v", e.Name, e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode resolves the named parameter from set as a value of type T.
//
// An absent name resolves to fallback with no error. A present value
// is parsed as JSON-encoded text of T; a JSON null resolves to
// fallback. Malformed input returns fallback alongside a *DecodeError.
//
// Two target types get special handling:
//
//   - map[string]string: the raw value may be a JSON object encoded a
//     second time as a JSON string (the transport's double-encoding
//     artifact). The extra layer is unwrapped before parsing, and
//     non-string member values are kept as their JSON text rather
//     than recursively decoded. A value that fails the secondary
//     parse resolves to fallback without error.
//   - string: a raw value that is not valid JSON text is used
//     directly as the decoded string. The transport passes bare
//     strings for string-typed parameters more often than quoted
//     ones.
func Decode[T any](set Set, name string, fallback T) (T, error) {
	raw, present := set[name]
	if !present {
		return fallback, nil
	}

	var out T
	switch target := any(&out).(type) {
	case *map[string]string:
		decoded, err := decodeStringMap(raw)
		if err != nil || decoded == nil {
			return fallback, nil
		}
		*target = decoded
		return out, nil

	case *string:
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			*target = raw
			return out, nil
		}
		*target = s
		return out, nil
	}

	if isJSONNull(raw) {
		return fallback, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback, &DecodeError{
			Name: name,
			Type: fmt.Sprintf("%T", out),
			Err:  err,
		}
	}
	return out, nil
}

// TryDecode is the permissive form of [Decode]: it never fails. The
// boolean reports whether the parameter decoded cleanly; on any
// decode failure the result is fallback and false. An absent
// parameter resolves to fallback and true, mirroring Decode's
// absent-is-not-an-error contract.
func TryDecode[T any](set Set, name string, fallback T) (T, bool) {
	value, err := Decode(set, name, fallback)
	if err != nil {
		return fallback, false
	}
	return value, true
}

// decodeStringMap parses raw as a JSON object with string-coerced
// member values. When raw carries the double-encoding artifact (first
// and last byte are a quote, length > 1), the outer JSON string layer
// is removed first; that unwrap also resolves the backslash-escaped
// interior quotes.
func decodeStringMap(raw string) (map[string]string, error) {
	text := raw
	if len(raw) > 1 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		var unwrapped string
		if err := json.Unmarshal([]byte(raw), &unwrapped); err != nil {
			return nil, fmt.Errorf("unwrapping double-encoded value: %w", err)
		}
		text = unwrapped
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &members); err != nil {
		return nil, fmt.Errorf("parsing object: %w", err)
	}

	result := make(map[string]string, len(members))
	for key, value := range members {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			result[key] = s
			continue
		}
		// Numbers, booleans, null, and nested structures keep their
		// JSON text form.
		result[key] = string(value)
	}
	return result, nil
}

// isJSONNull reports whether raw is the JSON null literal, ignoring
// surrounding whitespace.
func isJSONNull(raw string) bool {
	return strings.TrimSpace(raw) == "null"
}
