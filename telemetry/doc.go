// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry aggregates lifecycle events from the kernel's
// subsystems into enriched, privacy-classified records and forwards
// them to an upload sink.
//
// Subsystems (workspace loader, compiler, executor, Azure connector,
// performance samplers) publish payloads on the in-process event bus.
// The [Aggregator] owns one handler per lifecycle topic; each handler
// builds exactly one [Event] from the payload — merging the shared
// [Context] snapshot and the live [Runtime] sample — and hands it to
// the [Sink]. Handlers run on the publishing subsystem's goroutine
// and never wait on network I/O; all blocking lives behind the sink's
// bounded Teardown.
//
// Telemetry is strictly an observer: no failure on this path may
// abort or delay compilation, execution, or any other interactive
// work. Handler and sink panics are absorbed and logged.
package telemetry
