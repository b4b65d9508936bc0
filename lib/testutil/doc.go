// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive]
// encapsulate the timeout safety valve pattern (select with a
// time.After fallback) so individual tests do not hang forever when a
// goroutine under test misbehaves. These helpers are the only place
// the test suite touches the real clock; everything time-driven in
// production code runs against lib/clock fakes.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Quasar-internal dependencies.
package testutil
