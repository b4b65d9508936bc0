// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quasar-kernel/quasar/lib/bus"
	"github.com/quasar-kernel/quasar/lib/clock"
)

// State is the aggregator lifecycle state.
type State uint32

const (
	// StateUninitialized is the state before Start.
	StateUninitialized State = 0

	// StateActive means handlers are registered and records flow to
	// the sink.
	StateActive State = 1

	// StateDraining means the kernel-stopped event arrived and the
	// final flush is in progress.
	StateDraining State = 2

	// StateTornDown is terminal. Every further emission is a silent
	// no-op.
	StateTornDown State = 3
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// defaultTeardownTimeout bounds the final drain when no explicit
// timeout is configured. One second is enough for a loopback upload
// and short enough not to hold up kernel shutdown noticeably.
const defaultTeardownTimeout = 1000 * time.Millisecond

// AggregatorConfig holds the collaborators an Aggregator observes and
// forwards to. All fields are required unless noted.
type AggregatorConfig struct {
	// Bus is the in-process event bus lifecycle events arrive on.
	Bus *bus.Bus

	// Sink receives every finished record.
	Sink Sink

	// Context is the shared key/value store and session identity.
	Context *Context

	// Runtime is sampled into every record at build time.
	Runtime Runtime

	// Clock provides time for the TimeSinceStart property. Production
	// callers pass clock.Real(); tests pass clock.Fake().
	Clock clock.Clock

	// Logger receives telemetry-path diagnostics. Telemetry errors
	// are logged here and never propagated.
	Logger *slog.Logger

	// TeardownTimeout bounds the final drain after the kernel stops.
	// Zero means the 1000ms default.
	TeardownTimeout time.Duration
}

// Aggregator subscribes to the kernel's lifecycle topics, builds one
// record per event occurrence, and forwards each to the sink.
//
// Lifecycle: Uninitialized → Active (Start) → Draining (kernel
// stopped) → TornDown. Handlers run concurrently on whatever
// goroutine published the event; the aggregator serializes nothing
// across topics — only the shared Context locks, and only around its
// own map.
type Aggregator struct {
	bus     *bus.Bus
	sink    Sink
	context *Context
	builder *Builder
	logger  *slog.Logger

	teardownTimeout time.Duration

	state atomic.Uint32

	// subscriptions are cancelled during teardown so a late publisher
	// stops reaching the aggregator at all.
	subscriptions []*bus.Subscription

	// stopOnce collapses concurrent kernel-stopped deliveries into
	// one drain.
	stopOnce sync.Once
}

// NewAggregator validates the configuration and returns an
// aggregator in the Uninitialized state. Call Start to begin
// observing.
func NewAggregator(config AggregatorConfig) (*Aggregator, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("telemetry aggregator: Bus is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("telemetry aggregator: Sink is required")
	}
	if config.Context == nil {
		return nil, fmt.Errorf("telemetry aggregator: Context is required")
	}
	if config.Runtime == nil {
		return nil, fmt.Errorf("telemetry aggregator: Runtime is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("telemetry aggregator: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("telemetry aggregator: Logger is required")
	}

	timeout := config.TeardownTimeout
	if timeout == 0 {
		timeout = defaultTeardownTimeout
	}

	return &Aggregator{
		bus:             config.Bus,
		sink:            config.Sink,
		context:         config.Context,
		builder:         NewBuilder(config.Context, config.Runtime, config.Clock),
		logger:          config.Logger,
		teardownTimeout: timeout,
	}, nil
}

// Start registers one handler per lifecycle topic, enters the Active
// state, and emits the startup marker. A second Start is a no-op.
func (a *Aggregator) Start() {
	if !a.state.CompareAndSwap(uint32(StateUninitialized), uint32(StateActive)) {
		return
	}

	a.subscribe(TopicServiceInitialized, payloadHandler(a, a.builder.BuildServiceInitialized))
	a.subscribe(TopicWorkspaceReady, func(any) { a.emit(a.builder.BuildWorkspaceReady()) })
	a.subscribe(TopicWorkspaceReload, payloadHandler(a, a.builder.BuildWorkspaceReload))
	a.subscribe(TopicPackageLoad, payloadHandler(a, a.builder.BuildPackageLoad))
	a.subscribe(TopicProjectLoad, payloadHandler(a, a.builder.BuildProjectLoad))
	a.subscribe(TopicCompile, payloadHandler(a, a.builder.BuildCompile))
	a.subscribe(TopicActionExecuted, payloadHandler(a, a.builder.BuildAction))
	a.subscribe(TopicHelpExecuted, payloadHandler(a, a.builder.BuildAction))
	a.subscribe(TopicCodeCompletion, payloadHandler(a, a.builder.BuildCodeCompletion))
	a.subscribe(TopicExperimentalFeature, payloadHandler(a, a.builder.BuildExperimentalFeatureEnabled))
	a.subscribe(TopicDeviceCapabilities, payloadHandler(a, a.builder.BuildDeviceCapabilities))
	a.subscribe(TopicSimulatorPerformance, payloadHandler(a, a.builder.BuildSimulatorPerformance))
	a.subscribe(TopicKernelPerformance, payloadHandler(a, a.builder.BuildKernelPerformance))
	a.subscribe(TopicAzureConnect, payloadHandler(a, a.builder.BuildConnectToWorkspace))
	a.subscribe(TopicClientMetadata, a.onClientMetadata)
	a.subscribe(TopicKernelStopped, func(any) { a.onKernelStopped() })

	a.emit(a.builder.BuildTelemetryStarted())
}

// State returns the current lifecycle state.
func (a *Aggregator) State() State {
	return State(a.state.Load())
}

func (a *Aggregator) subscribe(topic string, handler bus.Handler) {
	a.subscriptions = append(a.subscriptions, a.bus.Subscribe(topic, handler))
}

// payloadHandler adapts a typed builder function into a bus handler.
// A payload of the wrong type is logged and dropped; a publisher bug
// must not break other event sources.
func payloadHandler[T any](a *Aggregator, build func(T) Event) bus.Handler {
	return func(payload any) {
		info, ok := payload.(T)
		if !ok {
			a.logger.Warn("telemetry: unexpected payload type",
				"got", fmt.Sprintf("%T", payload),
				"want", fmt.Sprintf("%T", info),
			)
			return
		}
		a.emit(build(info))
	}
}

// emit forwards one record to the sink if the aggregator is Active.
// Sink panics are absorbed here: telemetry failures never reach the
// publishing subsystem.
func (a *Aggregator) emit(event Event) {
	if a.State() != StateActive {
		return
	}
	a.forward(event)
}

func (a *Aggregator) forward(event Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("telemetry: sink panicked on LogEvent",
				"event", event.Name,
				"panic", r,
			)
		}
	}()
	a.sink.LogEvent(event)
}

// onClientMetadata mirrors an allow-listed metadata property into the
// shared context and the sink's upload-level context. Non-listed
// names are dropped silently.
func (a *Aggregator) onClientMetadata(payload any) {
	change, ok := payload.(ClientMetadataChange)
	if !ok {
		a.logger.Warn("telemetry: unexpected payload type",
			"got", fmt.Sprintf("%T", payload),
			"want", "telemetry.ClientMetadataChange",
		)
		return
	}
	if a.State() != StateActive {
		return
	}
	if a.context.SetSharedIfAllowed(change.Name, change.Value) {
		a.sink.SetSharedContext(change.Name, change.Value)
	}
}

// onKernelStopped drives Active → Draining → TornDown: emit the final
// record, request an immediate flush, tear the sink down with the
// bounded timeout, and cancel every subscription. Runs at most once;
// the transition is skipped entirely if the aggregator was never
// Active.
func (a *Aggregator) onKernelStopped() {
	a.stopOnce.Do(func() {
		if !a.state.CompareAndSwap(uint32(StateActive), uint32(StateDraining)) {
			return
		}

		a.forward(a.builder.BuildKernelStopped())
		a.drainSink()

		for _, subscription := range a.subscriptions {
			subscription.Cancel()
		}
		a.state.Store(uint32(StateTornDown))

		a.logger.Info("telemetry: aggregator torn down")
	})
}

// drainSink runs the flush-and-teardown sequence with the same panic
// isolation as forward. A sink that fails here costs buffered
// records, not the kernel's shutdown.
func (a *Aggregator) drainSink() {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("telemetry: sink panicked during drain", "panic", r)
		}
	}()
	a.sink.UploadNow()
	a.sink.Teardown(a.teardownTimeout)
}
