// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus provides the in-process event bus that kernel
// subsystems publish lifecycle events on.
//
// The bus is an explicit subscribe(topic, handler) registry with
// synchronous fan-out: handlers run on the publisher's goroutine, so
// events from one source preserve their publish order while events
// from different sources interleave freely. There is no persistence
// or replay.
//
// Handler panics are absorbed and counted so a misbehaving observer
// can never abort the publishing subsystem's work.
package bus
