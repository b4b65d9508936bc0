// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploader provides the production telemetry sink: a bounded
// in-memory event queue flushed periodically (and on demand) as
// zstd-compressed CBOR batches to an HTTP collection endpoint.
//
// The queue drops its oldest events under pressure, so a slow or
// unreachable endpoint costs telemetry data, never kernel memory or
// kernel latency. Teardown makes one final bounded flush attempt and
// then turns every further call into a no-op.
package uploader
