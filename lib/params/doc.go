// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package params decodes loosely-typed, string-encoded protocol
// parameters into typed Go values with safe fallback.
//
// Magic commands and kernel configuration arrive as string-keyed,
// string-valued parameter sets whose values are JSON-encoded text.
// [Decode] is the strict path: malformed input yields a *DecodeError
// naming the parameter and target type. [TryDecode] is the permissive
// adapter: any failure collapses into the caller-supplied fallback and
// a false flag. An absent parameter is not an error on either path —
// it resolves to the fallback.
//
// String-map targets get one extra unwrap step: some transports
// deliver a JSON object that has been JSON-encoded a second time
// (quoted, with interior quotes backslash-escaped). The decoder
// detects that shape and unwraps it before parsing.
package params
