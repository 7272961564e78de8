// Package config defines the stress test configuration model and its
// JSON/YAML loaders.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgebench/forgebench/internal/alerting"
	"github.com/forgebench/forgebench/internal/metrics"
	"github.com/forgebench/forgebench/internal/scenario"
	"gopkg.in/yaml.v3"
)

// CustomCheck is a named predicate evaluated against the final metrics.
// Checks are code, not data, so they are skipped by the file loaders.
type CustomCheck struct {
	Name  string
	Check func(m metrics.StressMetrics) bool
}

// SuccessCriteria defines the pass/fail thresholds for a run. Zero values
// disable the corresponding check.
type SuccessCriteria struct {
	// MaxResponseTimeMs bounds the observed maximum response time.
	MaxResponseTimeMs int64 `json:"max_response_time_ms" yaml:"max_response_time_ms"`

	// MaxErrorRate bounds failed/total in [0,1].
	MaxErrorRate float64 `json:"max_error_rate" yaml:"max_error_rate"`

	// MinThroughput is the minimum completed requests per second.
	MinThroughput float64 `json:"min_throughput" yaml:"min_throughput"`

	// MaxMemoryUsage bounds peak memory as a fraction of the limit in [0,1].
	MaxMemoryUsage float64 `json:"max_memory_usage" yaml:"max_memory_usage"`

	// MaxCPUUsage bounds p95 CPU percent.
	MaxCPUUsage float64 `json:"max_cpu_usage" yaml:"max_cpu_usage"`

	// CustomChecks run after the threshold checks; every failure is reported.
	CustomChecks []CustomCheck `json:"-" yaml:"-"`
}

// MonitoringConfig controls the alert monitor's tick loop.
type MonitoringConfig struct {
	// IntervalMs is how often metrics are sampled and alerts evaluated.
	IntervalMs int64 `json:"interval_ms" yaml:"interval_ms"`

	// Metrics lists the metric names recorded to the timeline each tick.
	Metrics []string `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Alerts are the threshold rules evaluated each tick.
	Alerts []alerting.AlertConfig `json:"alerts,omitempty" yaml:"alerts,omitempty"`
}

// StressTestConfig is the full description of one stress test run.
type StressTestConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// DurationMs is the total run length including ramp-up.
	DurationMs int64 `json:"duration_ms" yaml:"duration_ms"`

	// RampUpTimeMs is the window over which users are started in batches.
	RampUpTimeMs int64 `json:"ramp_up_time_ms" yaml:"ramp_up_time_ms"`

	// TargetLoad is the traffic shape for the run.
	TargetLoad scenario.LoadProfile `json:"target_load" yaml:"target_load"`

	// Scenarios is the weighted scenario mix.
	Scenarios []scenario.Scenario `json:"scenarios" yaml:"scenarios"`

	SuccessCriteria SuccessCriteria  `json:"success_criteria" yaml:"success_criteria"`
	Monitoring      MonitoringConfig `json:"monitoring" yaml:"monitoring"`

	// Seed makes scenario selection and simulated latency reproducible.
	// Zero means a time-based seed.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Validate checks structural invariants and fills defaults in place.
func (c *StressTestConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if c.DurationMs <= 0 {
		return fmt.Errorf("config %q: duration must be positive", c.Name)
	}
	if c.RampUpTimeMs < 0 {
		return fmt.Errorf("config %q: ramp-up time must not be negative", c.Name)
	}
	if c.RampUpTimeMs > c.DurationMs {
		return fmt.Errorf("config %q: ramp-up time %dms exceeds duration %dms", c.Name, c.RampUpTimeMs, c.DurationMs)
	}
	if c.TargetLoad.ConcurrentUsers <= 0 {
		return fmt.Errorf("config %q: concurrent users must be positive", c.Name)
	}
	if err := scenario.Validate(c.Scenarios); err != nil {
		return fmt.Errorf("config %q: %w", c.Name, err)
	}
	if c.SuccessCriteria.MaxErrorRate < 0 || c.SuccessCriteria.MaxErrorRate > 1 {
		return fmt.Errorf("config %q: max error rate must be in [0,1]", c.Name)
	}
	if c.SuccessCriteria.MaxMemoryUsage < 0 || c.SuccessCriteria.MaxMemoryUsage > 1 {
		return fmt.Errorf("config %q: max memory usage must be in [0,1]", c.Name)
	}

	if c.Monitoring.IntervalMs <= 0 {
		c.Monitoring.IntervalMs = DefaultMonitoringIntervalMs
	}
	if c.TargetLoad.SessionDurationMs <= 0 {
		c.TargetLoad.SessionDurationMs = DefaultSessionDurationMs
	}
	return nil
}

// Load reads a config from a JSON or YAML file, chosen by extension.
func Load(path string) (*StressTestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg StressTestConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported extension %q (want .json, .yaml, or .yml)", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
