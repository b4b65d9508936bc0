// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quasar-kernel/quasar/lib/clock"
	"github.com/quasar-kernel/quasar/lib/codec"
	"github.com/quasar-kernel/quasar/telemetry"
)

// Defaults applied when the corresponding Config field is zero.
const (
	defaultFlushInterval = 30 * time.Second
	defaultMaxEvents     = 4096

	// shipTimeout bounds a single Ship call. Shorter than the HTTP
	// client's own timeout so the flush loop stays responsive.
	shipTimeout = 10 * time.Second
)

// Batch is the wire unit sent to the collection endpoint. Encoded as
// deterministic CBOR, then zstd-compressed by the shipper.
type Batch struct {
	// Sequence increases by one per shipped batch within a process, so
	// the endpoint can detect gaps from dropped batches.
	Sequence uint64 `json:"sequence"`

	// SentAt is the flush time in UTC.
	SentAt time.Time `json:"sent_at"`

	// Context carries the upload-level properties set via SetContext
	// and SetSharedContext, stamped per batch rather than per event.
	Context map[string]telemetry.Property `json:"context,omitempty"`

	// Events are the queued records, oldest first.
	Events []telemetry.Event `json:"events"`
}

// Config holds the collaborators and tuning for an Uploader.
type Config struct {
	// Shipper sends encoded batches. Required.
	Shipper Shipper

	// Clock drives the flush ticker and the teardown deadline.
	// Required.
	Clock clock.Clock

	// Logger receives ship failures and drop diagnostics. Required.
	Logger *slog.Logger

	// FlushInterval is the periodic flush cadence. Zero means 30s.
	FlushInterval time.Duration

	// MaxEvents bounds the pending queue. When a LogEvent would exceed
	// it, the oldest event is dropped. Zero means 4096.
	MaxEvents int
}

// Uploader is the production telemetry.Sink. Events queue in memory
// and ship in batches from a single flush goroutine; every exported
// method is safe for concurrent use and returns promptly.
type Uploader struct {
	shipper       Shipper
	clock         clock.Clock
	logger        *slog.Logger
	flushInterval time.Duration
	maxEvents     int

	mu       sync.Mutex
	pending  []telemetry.Event
	defaults map[string]telemetry.Property

	sequence atomic.Uint64
	shipped  atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	torn atomic.Bool

	flushNow chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// New validates the configuration and returns an Uploader. Call Start
// to begin the flush loop.
func New(config Config) (*Uploader, error) {
	if config.Shipper == nil {
		return nil, fmt.Errorf("uploader: Shipper is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("uploader: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("uploader: Logger is required")
	}

	flushInterval := config.FlushInterval
	if flushInterval == 0 {
		flushInterval = defaultFlushInterval
	}
	maxEvents := config.MaxEvents
	if maxEvents == 0 {
		maxEvents = defaultMaxEvents
	}
	if maxEvents < 0 {
		return nil, fmt.Errorf("uploader: MaxEvents must be positive, got %d", maxEvents)
	}

	return &Uploader{
		shipper:       config.Shipper,
		clock:         config.Clock,
		logger:        config.Logger,
		flushInterval: flushInterval,
		maxEvents:     maxEvents,
		defaults:      make(map[string]telemetry.Property),
		flushNow:      make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Start launches the flush goroutine. Call exactly once.
func (u *Uploader) Start() {
	go u.run()
}

func (u *Uploader) run() {
	defer close(u.done)

	ticker := u.clock.NewTicker(u.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.flush()
		case <-u.flushNow:
			u.flush()
		case <-u.stop:
			// Final flush so teardown ships what it can.
			u.flush()
			return
		}
	}
}

// LogEvent queues one record for the next batch. When the queue is
// full the oldest record is dropped. No-op after Teardown.
func (u *Uploader) LogEvent(event telemetry.Event) {
	if u.torn.Load() {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	for len(u.pending) >= u.maxEvents {
		u.pending[0] = telemetry.Event{} // release for GC
		u.pending = u.pending[1:]
		u.dropped.Add(1)
	}
	u.pending = append(u.pending, event)
}

// SetContext sets an upload-level property stamped onto every
// subsequent batch. No-op after Teardown.
func (u *Uploader) SetContext(key, value string, pii telemetry.PIIKind) {
	if u.torn.Load() {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.defaults[key] = telemetry.Property{Value: value, PII: pii}
}

// SetSharedContext sets an upload-level property with no PII tag.
func (u *Uploader) SetSharedContext(key, value string) {
	u.SetContext(key, value, telemetry.PIINone)
}

// UploadNow asks the flush goroutine to flush as soon as possible. The
// signal is coalesced: at most one pending request. Non-blocking.
func (u *Uploader) UploadNow() {
	if u.torn.Load() {
		return
	}
	select {
	case u.flushNow <- struct{}{}:
	default:
	}
}

// Teardown stops the flush goroutine, waiting up to timeout for its
// final flush. Idempotent; after the first call every other method is
// a no-op.
func (u *Uploader) Teardown(timeout time.Duration) {
	if !u.torn.CompareAndSwap(false, true) {
		return
	}
	close(u.stop)
	select {
	case <-u.done:
	case <-u.clock.After(timeout):
		u.logger.Warn("uploader: teardown timed out, abandoning final flush",
			"timeout", timeout,
		)
	}
}

// Shipped returns the number of successfully shipped batches.
func (u *Uploader) Shipped() uint64 { return u.shipped.Load() }

// Dropped returns the number of events dropped to queue pressure.
func (u *Uploader) Dropped() uint64 { return u.dropped.Load() }

// Failed returns the number of batches abandoned after a ship error.
func (u *Uploader) Failed() uint64 { return u.failed.Load() }

// flush swaps out the pending queue and ships it as one batch. A ship
// failure drops the batch: telemetry never retries at the cost of
// unbounded memory, and the sequence gap tells the endpoint what was
// lost. Runs only on the flush goroutine.
func (u *Uploader) flush() {
	u.mu.Lock()
	if len(u.pending) == 0 {
		u.mu.Unlock()
		return
	}
	events := u.pending
	u.pending = nil
	defaults := make(map[string]telemetry.Property, len(u.defaults))
	for key, property := range u.defaults {
		defaults[key] = property
	}
	u.mu.Unlock()

	batch := Batch{
		Sequence: u.sequence.Add(1),
		SentAt:   u.clock.Now().UTC(),
		Context:  defaults,
		Events:   events,
	}

	data, err := codec.Marshal(batch)
	if err != nil {
		u.failed.Add(1)
		u.logger.Error("uploader: batch encode failed, dropping batch",
			"error", err,
			"events", len(events),
		)
		return
	}

	shipContext, cancel := context.WithTimeout(context.Background(), shipTimeout)
	defer cancel()

	if err := u.shipper.Ship(shipContext, data); err != nil {
		u.failed.Add(1)
		u.logger.Warn("uploader: batch ship failed, dropping batch",
			"error", err,
			"sequence", batch.Sequence,
			"events", len(events),
		)
		return
	}
	u.shipped.Add(1)
}
