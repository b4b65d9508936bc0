// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// quasar-telemetry-probe drives the telemetry pipeline end to end with
// a synthetic kernel session: startup, a few compile/action rounds,
// and a clean shutdown drain. Use it to verify an endpoint accepts
// batches before wiring a real kernel to it, or with --dry-run to
// inspect the exact records a session produces.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/quasar-kernel/quasar/lib/bus"
	"github.com/quasar-kernel/quasar/lib/clock"
	"github.com/quasar-kernel/quasar/lib/config"
	"github.com/quasar-kernel/quasar/telemetry"
	"github.com/quasar-kernel/quasar/telemetry/uploader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("quasar-telemetry-probe", pflag.ContinueOnError)
	configPath := flagSet.String("config", "",
		"path to the quasar.yaml config file (default: $QUASAR_CONFIG)")
	dryRun := flagSet.Bool("dry-run", false,
		"print records to stdout as JSON instead of uploading")
	rounds := flagSet.Int("events", 3,
		"number of synthetic compile/action rounds to emit")
	verbose := flagSet.BoolP("verbose", "v", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if *rounds < 1 {
		return fmt.Errorf("--events must be at least 1, got %d", *rounds)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath, *dryRun)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sink, err := buildSink(cfg, *dryRun, logger)
	if err != nil {
		return err
	}

	runtime := &probeRuntime{}
	eventBus := bus.New()
	aggregator, err := telemetry.NewAggregator(telemetry.AggregatorConfig{
		Bus:             eventBus,
		Sink:            sink,
		Context:         telemetry.NewContext(),
		Runtime:         runtime,
		Clock:           clock.Real(),
		Logger:          logger,
		TeardownTimeout: cfg.TeardownTimeout(),
	})
	if err != nil {
		return err
	}
	aggregator.Start()

	logger.Info("probe session starting",
		"rounds", *rounds,
		"dry_run", *dryRun,
	)

	playSession(ctx, eventBus, runtime, *rounds)

	// The kernel-stopped event drives the aggregator's drain: the sink
	// flushes and tears down before Publish returns.
	eventBus.Publish(telemetry.TopicKernelStopped, nil)

	if recovered := eventBus.Recovered(); recovered > 0 {
		logger.Warn("handlers panicked during the session", "count", recovered)
	}
	if up, ok := sink.(*uploader.Uploader); ok {
		logger.Info("probe session finished",
			"batches_shipped", up.Shipped(),
			"batches_failed", up.Failed(),
			"events_dropped", up.Dropped(),
		)
		if up.Failed() > 0 {
			return fmt.Errorf("%d batch(es) failed to upload", up.Failed())
		}
	} else {
		logger.Info("probe session finished")
	}
	return nil
}

// loadConfig resolves the configuration source. Dry-run works without
// any config file since no endpoint is needed.
func loadConfig(path string, dryRun bool) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("QUASAR_CONFIG") != "" {
		return config.Load()
	}
	if dryRun {
		cfg := config.Default()
		disabled := false
		cfg.Telemetry.Enabled = &disabled
		return cfg, nil
	}
	return nil, fmt.Errorf("no configuration: pass --config, set QUASAR_CONFIG, or use --dry-run")
}

// buildSink picks the sink for this session: stdout for dry runs, the
// HTTP uploader when telemetry is enabled, Discard otherwise.
func buildSink(cfg *config.Config, dryRun bool, logger *slog.Logger) (telemetry.Sink, error) {
	if dryRun {
		return &printSink{encoder: json.NewEncoder(os.Stdout)}, nil
	}
	if !cfg.TelemetryEnabled() {
		logger.Warn("telemetry disabled in configuration, records will be discarded")
		return telemetry.Discard, nil
	}
	up, err := uploader.New(uploader.Config{
		Shipper:       uploader.NewHTTPShipper(cfg.Telemetry.Endpoint),
		Clock:         clock.Real(),
		Logger:        logger,
		FlushInterval: cfg.FlushInterval(),
		MaxEvents:     cfg.Telemetry.BufferMaxEvents,
	})
	if err != nil {
		return nil, err
	}
	up.Start()
	return up, nil
}

// playSession publishes a synthetic kernel session onto the bus. Stops
// early when the context is cancelled; the caller still publishes
// kernel-stopped so the drain always runs.
func playSession(ctx context.Context, eventBus *bus.Bus, runtime *probeRuntime, rounds int) {
	eventBus.Publish(telemetry.TopicServiceInitialized,
		telemetry.ServiceInfo{Service: "Quasar.Probe.Session"})
	eventBus.Publish(telemetry.TopicClientMetadata,
		telemetry.ClientMetadataChange{Name: "UserAgent", Value: "quasar-telemetry-probe"})
	eventBus.Publish(telemetry.TopicWorkspaceReady, nil)
	eventBus.Publish(telemetry.TopicPackageLoad, telemetry.PackageLoadInfo{
		ID:       "Microsoft.Quantum.Standard",
		Version:  "0.28.0",
		Duration: 40 * time.Millisecond,
	})

	for i := 0; i < rounds; i++ {
		if ctx.Err() != nil {
			return
		}
		runtime.executions.Add(1)
		eventBus.Publish(telemetry.TopicCompile, telemetry.CompileInfo{
			Status:     "success",
			Namespaces: []string{"Microsoft.Quantum.Intrinsic", "Probe.Session"},
			Duration:   time.Duration(10+i) * time.Millisecond,
		})
		eventBus.Publish(telemetry.TopicActionExecuted, telemetry.ActionInfo{
			Command:  "%simulate",
			Kind:     telemetry.ActionKindMagic,
			Status:   "success",
			Duration: time.Duration(25+i) * time.Millisecond,
		})
	}
}

// probeRuntime is the live collaborator state for the synthetic
// session. Only the execution count changes; target and subscription
// stay fixed.
type probeRuntime struct {
	executions atomic.Int64
}

func (r *probeRuntime) ExecutionCount() int      { return int(r.executions.Load()) }
func (r *probeRuntime) TargetID() string         { return "probe.simulator" }
func (r *probeRuntime) TargetCapability() string { return "FullComputation" }
func (r *probeRuntime) SubscriptionID() string   { return "" }

// printSink writes each record to stdout as one JSON object per line.
// Upload and teardown are no-ops: there is nothing buffered.
type printSink struct {
	encoder *json.Encoder
}

func (s *printSink) LogEvent(event telemetry.Event) {
	if err := s.encoder.Encode(event); err != nil {
		fmt.Fprintf(os.Stderr, "error: encoding record: %v\n", err)
	}
}

func (s *printSink) SetContext(key, value string, pii telemetry.PIIKind) {}
func (s *printSink) SetSharedContext(key, value string)                  {}
func (s *printSink) UploadNow()                                          {}
func (s *printSink) Teardown(timeout time.Duration)                      {}
