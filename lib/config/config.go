// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the kernel's
// telemetry layer.
//
// Configuration is loaded from a single YAML file specified by the
// QUASAR_CONFIG environment variable or an explicit path. There are
// no fallbacks or automatic discovery; this keeps deployments
// deterministic and auditable. Unset fields take the documented
// defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the telemetry layer configuration.
type Config struct {
	// Telemetry configures event aggregation and upload.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig configures the aggregator and the upload sink.
type TelemetryConfig struct {
	// Enabled turns telemetry collection on. When false the kernel
	// wires a no-op sink and never contacts the endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Endpoint is the HTTPS URL batches are uploaded to. Required
	// when telemetry is enabled.
	Endpoint string `yaml:"endpoint"`

	// FlushInterval is how often buffered events are uploaded, as a
	// Go duration string.
	// Default: 30s
	FlushInterval string `yaml:"flush_interval"`

	// BufferMaxEvents caps the in-memory event queue. When the queue
	// is full the oldest events are dropped.
	// Default: 4096
	BufferMaxEvents int `yaml:"buffer_max_events"`

	// TeardownTimeout bounds the final drain on kernel shutdown, as a
	// Go duration string.
	// Default: 1000ms
	TeardownTimeout string `yaml:"teardown_timeout"`
}

// Default returns the default configuration. These defaults are the
// base that a loaded file overrides.
func Default() *Config {
	enabled := true
	return &Config{
		Telemetry: TelemetryConfig{
			Enabled:         &enabled,
			FlushInterval:   "30s",
			BufferMaxEvents: 4096,
			TeardownTimeout: "1000ms",
		},
	}
}

// Load loads configuration from the file named by the QUASAR_CONFIG
// environment variable. Fails if the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("QUASAR_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("QUASAR_CONFIG environment variable not set; " +
			"set it to the path of your quasar.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults. Environment variables do not override file
// values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// TelemetryEnabled reports whether telemetry collection is on.
func (c *Config) TelemetryEnabled() bool {
	return c.Telemetry.Enabled == nil || *c.Telemetry.Enabled
}

// FlushInterval returns the parsed flush interval. Call Validate
// first; this panics on an unparseable value.
func (c *Config) FlushInterval() time.Duration {
	return mustDuration("telemetry.flush_interval", c.Telemetry.FlushInterval)
}

// TeardownTimeout returns the parsed teardown timeout. Call Validate
// first; this panics on an unparseable value.
func (c *Config) TeardownTimeout() time.Duration {
	return mustDuration("telemetry.teardown_timeout", c.Telemetry.TeardownTimeout)
}

func mustDuration(field, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("config: %s not validated: %v", field, err))
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.ParseDuration(c.Telemetry.FlushInterval); err != nil {
		errs = append(errs, fmt.Errorf("telemetry.flush_interval: %w", err))
	}
	if _, err := time.ParseDuration(c.Telemetry.TeardownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("telemetry.teardown_timeout: %w", err))
	}
	if c.Telemetry.BufferMaxEvents <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.buffer_max_events must be positive, got %d", c.Telemetry.BufferMaxEvents))
	}

	if c.TelemetryEnabled() {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, fmt.Errorf("telemetry.endpoint is required when telemetry is enabled"))
		} else if parsed, err := url.Parse(c.Telemetry.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("telemetry.endpoint: %w", err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errs = append(errs, fmt.Errorf("telemetry.endpoint: unsupported scheme %q", parsed.Scheme))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
