// Package alerting watches aggregate metrics during a run and reacts to
// threshold breaches.
package alerting

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/forgebench/forgebench/internal/events"
	"github.com/forgebench/forgebench/internal/metrics"
	"github.com/forgebench/forgebench/internal/otel"
)

// Action is what the monitor does when a threshold is breached.
type Action string

const (
	// ActionLog records the breach in the event log and timeline only.
	ActionLog Action = "log"

	// ActionNotify additionally pushes the alert to the notify channel.
	ActionNotify Action = "notify"

	// ActionAbort additionally sets the shared abort flag, draining the run.
	ActionAbort Action = "abort"
)

// AlertConfig is one threshold rule evaluated every monitoring tick.
type AlertConfig struct {
	Metric    string  `json:"metric" yaml:"metric"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Action    Action  `json:"action" yaml:"action"`
}

// Alert is a single fired breach.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Action    Action    `json:"action"`
}

// MetricSource resolves metric names to current values. The second return is
// false for unknown metrics, which never fire.
type MetricSource interface {
	MetricValue(name string) (float64, bool)
}

// TimelineRecorder receives alert entries for the run timeline.
type TimelineRecorder interface {
	AddTimeline(event string, value float64, typ metrics.EntryType)
}

// Monitor evaluates alert rules on a fixed interval. Breaches use a strict
// greater-than comparison and are not deduplicated: a sustained breach fires
// on every tick.
type Monitor struct {
	configs  []AlertConfig
	source   MetricSource
	timeline TimelineRecorder
	interval time.Duration
	abort    *atomic.Bool
	notify   chan Alert
}

// NewMonitor creates a monitor over the given rules. The abort flag is shared
// with the scheduler; a nil flag disables the abort action's effect.
func NewMonitor(configs []AlertConfig, source MetricSource, timeline TimelineRecorder, interval time.Duration, abort *atomic.Bool) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	copied := make([]AlertConfig, len(configs))
	copy(copied, configs)
	return &Monitor{
		configs:  copied,
		source:   source,
		timeline: timeline,
		interval: interval,
		abort:    abort,
		notify:   make(chan Alert, 64),
	}
}

// Notifications returns the channel that receives notify-action alerts.
// Alerts are dropped rather than blocking when the channel is full.
func (m *Monitor) Notifications() <-chan Alert {
	return m.notify
}

// Run evaluates the rules every interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Evaluate(now)
		}
	}
}

// Evaluate runs a single evaluation pass and returns the alerts fired.
func (m *Monitor) Evaluate(now time.Time) []Alert {
	var fired []Alert

	for i := range m.configs {
		cfg := &m.configs[i]
		value, ok := m.source.MetricValue(cfg.Metric)
		if !ok {
			continue
		}
		if value <= cfg.Threshold {
			continue
		}

		alert := Alert{
			Timestamp: now,
			Metric:    cfg.Metric,
			Value:     value,
			Threshold: cfg.Threshold,
			Action:    cfg.Action,
		}
		fired = append(fired, alert)
		m.dispatch(alert)
	}

	return fired
}

// dispatch records the alert in the timeline before applying its action, so
// an aborting alert is always visible in the result.
func (m *Monitor) dispatch(alert Alert) {
	if m.timeline != nil {
		m.timeline.AddTimeline("alert:"+alert.Metric, alert.Value, metrics.EntryAlert)
	}

	events.GetGlobalEventLogger().LogAlert(alert.Metric, alert.Value, alert.Threshold, string(alert.Action))
	otel.GetGlobalMetrics().RecordAlert(context.Background(), alert.Metric, string(alert.Action))

	switch alert.Action {
	case ActionNotify:
		select {
		case m.notify <- alert:
		default:
		}

	case ActionAbort:
		events.GetGlobalEventLogger().LogAbort(alert.Metric, alert.Value, alert.Threshold)
		if m.abort != nil {
			m.abort.Store(true)
		}
	}
}
