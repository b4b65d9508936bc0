// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/quasar-kernel/quasar/lib/bus"
	"github.com/quasar-kernel/quasar/lib/clock"
)

// captureSink records every Sink call for assertions.
type captureSink struct {
	mu              sync.Mutex
	events          []Event
	sharedContext   map[string]string
	uploadNowCalls  int
	teardownTimeout time.Duration
	tornDown        bool
}

func newCaptureSink() *captureSink {
	return &captureSink{sharedContext: make(map[string]string)}
}

func (s *captureSink) LogEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) SetContext(key, value string, pii PIIKind) {
	s.SetSharedContext(key, value)
}

func (s *captureSink) SetSharedContext(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedContext[key] = value
}

func (s *captureSink) UploadNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadNowCalls++
}

func (s *captureSink) Teardown(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownTimeout = timeout
	s.tornDown = true
}

func (s *captureSink) eventNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, event := range s.events {
		names[i] = event.Name
	}
	return names
}

func (s *captureSink) lastEvent() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *captureSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testAggregator(t *testing.T, sink Sink) (*Aggregator, *bus.Bus) {
	t.Helper()
	eventBus := bus.New()
	aggregator, err := NewAggregator(AggregatorConfig{
		Bus:     eventBus,
		Sink:    sink,
		Context: NewContext(),
		Runtime: FixedRuntime{Executions: 3, Target: "ionq.simulator", Capability: "Basic", Subscription: "sub-1"},
		Clock:   clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return aggregator, eventBus
}

func TestNewAggregatorValidatesConfig(t *testing.T) {
	_, err := NewAggregator(AggregatorConfig{})
	if err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestStartEmitsStartupMarker(t *testing.T) {
	sink := newCaptureSink()
	aggregator, _ := testAggregator(t, sink)

	if aggregator.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %v", aggregator.State())
	}

	aggregator.Start()

	if aggregator.State() != StateActive {
		t.Fatalf("expected active, got %v", aggregator.State())
	}
	names := sink.eventNames()
	if len(names) != 1 || names[0] != "TelemetryStarted" {
		t.Fatalf("expected startup marker, got %v", names)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)

	aggregator.Start()
	aggregator.Start()

	if sink.eventCount() != 1 {
		t.Fatalf("second Start emitted another marker: %v", sink.eventNames())
	}

	// Handlers registered once: one compile event yields one record.
	eventBus.Publish(TopicCompile, CompileInfo{Status: "success"})
	if sink.eventCount() != 2 {
		t.Fatalf("expected 2 records, got %v", sink.eventNames())
	}
}

func TestCompileEventEndToEnd(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	eventBus.Publish(TopicCompile, CompileInfo{
		Status:     "success",
		Errors:     nil,
		Namespaces: []string{"Microsoft.Quantum.Foo", "Other.Bar"},
		Duration:   120 * time.Millisecond,
	})

	event := sink.lastEvent()
	if event.Name != "Compile" {
		t.Fatalf("expected Compile record, got %q", event.Name)
	}
	if event.Properties["Namespaces"].Value != "Microsoft.Quantum.Foo" {
		t.Fatalf("expected filtered namespaces, got %q", event.Properties["Namespaces"].Value)
	}
	if event.Properties["Errors"].Value != "" {
		t.Fatalf("expected empty errors, got %q", event.Properties["Errors"].Value)
	}
	for _, key := range []string{
		"SessionId", "ExecutionCount", "ActiveTargetId",
		"ActiveTargetCapability", "SubscriptionId", "TimeSinceStart",
	} {
		if _, ok := event.Properties[key]; !ok {
			t.Fatalf("common property %q missing", key)
		}
	}
}

func TestOneRecordPerOccurrence(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	for i := 0; i < 3; i++ {
		eventBus.Publish(TopicActionExecuted, ActionInfo{Command: "%simulate", Kind: ActionKindMagic, Status: "ok"})
	}

	// Startup marker plus three Action records, no dedup.
	names := sink.eventNames()
	if len(names) != 4 {
		t.Fatalf("expected 4 records, got %v", names)
	}
}

func TestHelpAndActionShareRecordShape(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	eventBus.Publish(TopicHelpExecuted, ActionInfo{Command: "%azure", Kind: ActionKindHelp, Status: "ok"})

	event := sink.lastEvent()
	if event.Name != "Action" {
		t.Fatalf("expected Action record, got %q", event.Name)
	}
	if event.Properties["Kind"].Value != "Help" {
		t.Fatalf("expected Help kind, got %q", event.Properties["Kind"].Value)
	}
}

func TestWrongPayloadTypeIsDropped(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	eventBus.Publish(TopicCompile, "not a CompileInfo")

	if sink.eventCount() != 1 {
		t.Fatalf("expected only the startup marker, got %v", sink.eventNames())
	}
	if aggregator.State() != StateActive {
		t.Fatal("bad payload must not affect aggregator state")
	}
}

func TestClientMetadataAllowListed(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	eventBus.Publish(TopicClientMetadata, ClientMetadataChange{Name: "UserAgent", Value: "browser/1.0"})
	eventBus.Publish(TopicClientMetadata, ClientMetadataChange{Name: "NotAllowedField", Value: "x"})

	sink.mu.Lock()
	mirrored := sink.sharedContext["UserAgent"]
	_, leaked := sink.sharedContext["NotAllowedField"]
	sink.mu.Unlock()

	if mirrored != "browser/1.0" {
		t.Fatalf("expected UserAgent mirrored to sink, got %q", mirrored)
	}
	if leaked {
		t.Fatal("unlisted metadata name leaked to sink")
	}

	// Later records carry the mirrored value.
	eventBus.Publish(TopicWorkspaceReady, nil)
	event := sink.lastEvent()
	if event.Properties["UserAgent"].Value != "browser/1.0" {
		t.Fatal("mirrored metadata missing from record")
	}
}

func TestKernelStoppedDrainsAndTearsDown(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	eventBus.Publish(TopicKernelStopped, nil)

	if aggregator.State() != StateTornDown {
		t.Fatalf("expected torn down, got %v", aggregator.State())
	}

	names := sink.eventNames()
	if names[len(names)-1] != "KernelStopped" {
		t.Fatalf("expected final KernelStopped record, got %v", names)
	}

	sink.mu.Lock()
	uploadCalls, tornDown, timeout := sink.uploadNowCalls, sink.tornDown, sink.teardownTimeout
	sink.mu.Unlock()
	if uploadCalls != 1 {
		t.Fatalf("expected one UploadNow, got %d", uploadCalls)
	}
	if !tornDown {
		t.Fatal("sink was not torn down")
	}
	if timeout != 1000*time.Millisecond {
		t.Fatalf("expected default 1000ms teardown timeout, got %v", timeout)
	}
}

func TestEmissionAfterTeardownIsNoOp(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	eventBus.Publish(TopicKernelStopped, nil)
	recorded := sink.eventCount()

	// Must not panic and must not reach the sink.
	eventBus.Publish(TopicCompile, CompileInfo{Status: "success"})
	eventBus.Publish(TopicKernelStopped, nil)
	eventBus.Publish(TopicClientMetadata, ClientMetadataChange{Name: "UserAgent", Value: "late"})

	if sink.eventCount() != recorded {
		t.Fatalf("records forwarded after teardown: %v", sink.eventNames())
	}
	if aggregator.State() != StateTornDown {
		t.Fatalf("expected torn down, got %v", aggregator.State())
	}
}

func TestConfiguredTeardownTimeout(t *testing.T) {
	sink := newCaptureSink()
	eventBus := bus.New()
	aggregator, err := NewAggregator(AggregatorConfig{
		Bus:             eventBus,
		Sink:            sink,
		Context:         NewContext(),
		Runtime:         FixedRuntime{},
		Clock:           clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		TeardownTimeout: 250 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	aggregator.Start()

	eventBus.Publish(TopicKernelStopped, nil)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.teardownTimeout != 250*time.Millisecond {
		t.Fatalf("expected configured timeout, got %v", sink.teardownTimeout)
	}
}

// panicSink panics on every LogEvent, standing in for a misbehaving
// upload library.
type panicSink struct{ captureSink }

func (s *panicSink) LogEvent(Event) { panic("sink bug") }

func TestSinkPanicIsIsolated(t *testing.T) {
	sink := &panicSink{}
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	// The publisher must survive the sink panicking.
	eventBus.Publish(TopicCompile, CompileInfo{Status: "success"})

	if aggregator.State() != StateActive {
		t.Fatalf("expected active, got %v", aggregator.State())
	}
}

func TestConcurrentEventSources(t *testing.T) {
	sink := newCaptureSink()
	aggregator, eventBus := testAggregator(t, sink)
	aggregator.Start()

	const perSource = 50
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			eventBus.Publish(TopicCompile, CompileInfo{Status: "success"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			eventBus.Publish(TopicActionExecuted, ActionInfo{Command: "%simulate", Kind: ActionKindMagic})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			eventBus.Publish(TopicKernelPerformance, KernelPerformanceInfo{ManagedRAMUsedBytes: 1, TotalRAMUsedBytes: 2})
		}
	}()
	wg.Wait()

	if sink.eventCount() != 1+3*perSource {
		t.Fatalf("expected %d records, got %d", 1+3*perSource, sink.eventCount())
	}
}
