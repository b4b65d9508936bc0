// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Quasar's standard CBOR encoding
// configuration.
//
// The kernel uses two serialization formats with a clear boundary:
// JSON for protocol-facing data (magic-command parameter sets, client
// metadata), CBOR for the telemetry upload wire format. This package
// holds the shared CBOR modes so every package encodes identically.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so
// the same logical batch always produces identical bytes.
package codec
