// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability.
//
// Code that waits or ticks accepts a Clock parameter instead of
// calling time.Now, time.After, time.NewTicker, or time.Sleep
// directly. Production wiring passes Real(); tests pass Fake() and
// drive time with Advance.
//
// When a goroutine registers a timer or ticker on a FakeClock, use
// WaitForTimers to block until the registration lands before calling
// Advance. This eliminates the registration/advance race that makes
// time.Sleep-based tests flaky.
package clock
