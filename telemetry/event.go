// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "fmt"

// PIIKind classifies a property value's privacy sensitivity. The
// upload backend uses the tag to decide retention and scrubbing; the
// kernel only assigns it.
type PIIKind uint8

const (
	// PIINone marks a property that carries no personal data.
	PIINone PIIKind = 0

	// PIIGenericData marks free-form values that may identify a user
	// or tenant (subscription ids, workspace names).
	PIIGenericData PIIKind = 1

	// PIIURI marks file and project URIs, which routinely embed user
	// names in their paths.
	PIIURI PIIKind = 2
)

// String returns the wire name of the classification.
func (k PIIKind) String() string {
	switch k {
	case PIINone:
		return "none"
	case PIIGenericData:
		return "generic_data"
	case PIIURI:
		return "uri"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Property is a single telemetry property: a string value plus its
// privacy classification.
type Property struct {
	Value string  `json:"value"`
	PII   PIIKind `json:"pii,omitempty"`
}

// Event is one finished telemetry record: a name plus its property
// map. Builders return fresh maps, so an Event is immutable by
// convention once handed to a sink; nothing in this package retains
// or mutates a built Event.
type Event struct {
	Name       string              `json:"name"`
	Properties map[string]Property `json:"properties"`
}
