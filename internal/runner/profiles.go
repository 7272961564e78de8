package runner

import (
	"fmt"
	"sort"

	"github.com/forgebench/forgebench/internal/alerting"
	"github.com/forgebench/forgebench/internal/config"
	"github.com/forgebench/forgebench/internal/scenario"
)

// Canonical profile names.
const (
	ProfileHighLoad           = "high-load"
	ProfileSpike              = "spike"
	ProfileEndurance          = "endurance"
	ProfileConcurrency        = "concurrency"
	ProfileResourceExhaustion = "resource-exhaustion"
)

// Profile returns a copy of the named built-in config.
func Profile(name string) (*config.StressTestConfig, error) {
	build, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("runner: unknown profile %q", name)
	}
	return build(), nil
}

// ProfileNames lists the built-in profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var profiles = map[string]func() *config.StressTestConfig{
	ProfileHighLoad:           highLoadProfile,
	ProfileSpike:              spikeProfile,
	ProfileEndurance:          enduranceProfile,
	ProfileConcurrency:        concurrencyProfile,
	ProfileResourceExhaustion: resourceExhaustionProfile,
}

// mixedScenarios is the standard 40/30/30 scenario mix used by most of
// the built-in profiles.
func mixedScenarios() []scenario.Scenario {
	return []scenario.Scenario{
		{
			ID:     "api-browsing",
			Weight: 40,
			Actions: []scenario.Action{
				{Type: scenario.ActionCreateSession, Critical: true},
				{Type: scenario.ActionAPICall, Params: map[string]interface{}{"endpoint": "/api/items"}},
				{Type: scenario.ActionAPICall, Params: map[string]interface{}{"endpoint": "/api/items/detail"}},
			},
		},
		{
			ID:     "code-execution",
			Weight: 30,
			Actions: []scenario.Action{
				{Type: scenario.ActionCreateSession, Critical: true},
				{Type: scenario.ActionExecuteCode, Params: map[string]interface{}{"language": "python"}},
				{Type: scenario.ActionFileOperation, Params: map[string]interface{}{"op": "write"}},
			},
		},
		{
			ID:     "data-queries",
			Weight: 30,
			Actions: []scenario.Action{
				{Type: scenario.ActionCreateSession, Critical: true},
				{Type: scenario.ActionDatabaseQuery, Params: map[string]interface{}{"query": "recent"}},
				{Type: scenario.ActionDatabaseQuery, Params: map[string]interface{}{"query": "aggregate"}},
			},
		},
	}
}

func defaultAlerts() []alerting.AlertConfig {
	return []alerting.AlertConfig{
		{Metric: "memory", Threshold: 0.9, Action: alerting.ActionAbort},
		{Metric: "cpu", Threshold: 95, Action: alerting.ActionLog},
		{Metric: "error_rate", Threshold: 0.25, Action: alerting.ActionNotify},
	}
}

func highLoadProfile() *config.StressTestConfig {
	return &config.StressTestConfig{
		Name:         "High Load Test",
		Description:  "Sustained high concurrency against the standard scenario mix",
		DurationMs:   300000,
		RampUpTimeMs: 60000,
		TargetLoad: scenario.LoadProfile{
			ConcurrentUsers:   100,
			RequestsPerSecond: 50,
			SessionDurationMs: 300000,
			ThinkTimeMs:       config.DefaultThinkTimeMs,
			ThinkTimeJitterMs: config.DefaultThinkTimeJitterMs,
			Distribution:      scenario.DistConstant,
		},
		Scenarios: mixedScenarios(),
		SuccessCriteria: config.SuccessCriteria{
			MaxResponseTimeMs: 2000,
			MaxErrorRate:      0.05,
			MinThroughput:     30,
			MaxMemoryUsage:    0.85,
			MaxCPUUsage:       90,
		},
		Monitoring: config.MonitoringConfig{
			IntervalMs: config.DefaultMonitoringIntervalMs,
			Metrics:    []string{"memory", "cpu", "error_rate", "p95_response_time"},
			Alerts:     defaultAlerts(),
		},
	}
}

func spikeProfile() *config.StressTestConfig {
	cfg := highLoadProfile()
	cfg.Name = "Spike Test"
	cfg.Description = "Front-loaded burst to probe recovery from sudden load"
	cfg.DurationMs = 180000
	cfg.RampUpTimeMs = 10000
	cfg.TargetLoad.ConcurrentUsers = 200
	cfg.TargetLoad.Distribution = scenario.DistSpike
	cfg.SuccessCriteria.MaxResponseTimeMs = 5000
	cfg.SuccessCriteria.MaxErrorRate = 0.10
	cfg.SuccessCriteria.MinThroughput = 0
	return cfg
}

func enduranceProfile() *config.StressTestConfig {
	cfg := highLoadProfile()
	cfg.Name = "Endurance Test"
	cfg.Description = "Moderate load held long enough to expose leaks and drift"
	cfg.DurationMs = 1800000
	cfg.RampUpTimeMs = 120000
	cfg.TargetLoad.ConcurrentUsers = 50
	cfg.TargetLoad.SessionDurationMs = 1800000
	cfg.SuccessCriteria.MaxMemoryUsage = 0.75
	return cfg
}

func concurrencyProfile() *config.StressTestConfig {
	cfg := highLoadProfile()
	cfg.Name = "Concurrency Test"
	cfg.Description = "Maximum simultaneous users with minimal think time"
	cfg.DurationMs = 300000
	cfg.RampUpTimeMs = 30000
	cfg.TargetLoad.ConcurrentUsers = 500
	cfg.TargetLoad.ThinkTimeMs = 100
	cfg.TargetLoad.ThinkTimeJitterMs = 50
	cfg.TargetLoad.Distribution = scenario.DistRamp
	cfg.SuccessCriteria.MaxResponseTimeMs = 3000
	return cfg
}

func resourceExhaustionProfile() *config.StressTestConfig {
	cfg := highLoadProfile()
	cfg.Name = "Resource Exhaustion Test"
	cfg.Description = "Push past expected capacity to find the breaking point"
	cfg.DurationMs = 600000
	cfg.RampUpTimeMs = 300000
	cfg.TargetLoad.ConcurrentUsers = 1000
	cfg.TargetLoad.Distribution = scenario.DistRamp
	cfg.SuccessCriteria = config.SuccessCriteria{
		// No pass/fail pressure; the point is the bottleneck report.
		MaxErrorRate: 0.5,
	}
	cfg.Monitoring.Alerts = []alerting.AlertConfig{
		{Metric: "memory", Threshold: 0.95, Action: alerting.ActionAbort},
		{Metric: "cpu", Threshold: 98, Action: alerting.ActionLog},
	}
	return cfg
}
