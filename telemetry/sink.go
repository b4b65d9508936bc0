// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "time"

// Sink receives finished telemetry records for buffering and upload.
// Implementations are the isolation boundary for upload failures:
// every method is fire-and-forget from the caller's perspective and
// must not propagate errors or block on network I/O. The single
// exception is Teardown, which may block up to its timeout.
type Sink interface {
	// LogEvent accepts one record. Calls after Teardown are no-ops.
	LogEvent(event Event)

	// SetContext sets an upload-level default property stamped onto
	// every batch, with a privacy classification.
	SetContext(key, value string, pii PIIKind)

	// SetSharedContext sets an unclassified upload-level default
	// property.
	SetSharedContext(key, value string)

	// UploadNow requests an immediate best-effort flush of buffered
	// records without waiting for it to complete.
	UploadNow()

	// Teardown stops the sink, spending at most timeout draining
	// buffered records. Records still unsent when the timeout expires
	// are dropped.
	Teardown(timeout time.Duration)
}

// Discard is a Sink that drops everything. It is the wiring for
// deployments with telemetry disabled.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) LogEvent(Event)                     {}
func (discardSink) SetContext(string, string, PIIKind) {}
func (discardSink) SetSharedContext(string, string)    {}
func (discardSink) UploadNow()                         {}
func (discardSink) Teardown(time.Duration)             {}
