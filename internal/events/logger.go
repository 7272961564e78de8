package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for key events in forgebench.
type EventLogger struct {
	logger *slog.Logger
	testID string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// It includes the test_id base attribute on every record.
func NewEventLogger(testID string) *EventLogger {
	return NewEventLoggerWithWriter(testID, os.Stdout)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to a
// custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(testID string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With(
		"test_id", testID,
	)
	return &EventLogger{
		logger: logger,
		testID: testID,
	}
}

// LogRunStarted logs the start of a stress test run.
// event: "run_started"
// Attributes: name, target_users, duration_ms, ramp_up_ms
func (el *EventLogger) LogRunStarted(name string, targetUsers int, durationMs, rampUpMs int64) {
	el.logger.Info("run_started",
		"name", name,
		"target_users", targetUsers,
		"duration_ms", durationMs,
		"ramp_up_ms", rampUpMs,
	)
}

// LogRunCompleted logs the end of a stress test run.
// event: "run_completed"
// Attributes: name, status, total_requests, error_rate, duration_ms
func (el *EventLogger) LogRunCompleted(name, status string, totalRequests int64, errorRate float64, durationMs int64) {
	el.logger.Info("run_completed",
		"name", name,
		"status", status,
		"total_requests", totalRequests,
		"error_rate", errorRate,
		"duration_ms", durationMs,
	)
}

// LogPhaseTransition logs a transition between load phases.
// event: "phase_transition"
// Attributes: from, to, active_users
func (el *EventLogger) LogPhaseTransition(from, to string, activeUsers int) {
	el.logger.Info("phase_transition",
		"from", from,
		"to", to,
		"active_users", activeUsers,
	)
}

// LogRampBatch logs the start of a ramp-up batch.
// event: "ramp_batch"
// Attributes: batch, users_started, active_users, target_users
func (el *EventLogger) LogRampBatch(batch, usersStarted, activeUsers, targetUsers int) {
	el.logger.Info("ramp_batch",
		"batch", batch,
		"users_started", usersStarted,
		"active_users", activeUsers,
		"target_users", targetUsers,
	)
}

// LogAlert logs a threshold breach detected by the alert monitor.
// event: "alert"
// Attributes: metric, value, threshold, action
func (el *EventLogger) LogAlert(metric string, value, threshold float64, action string) {
	el.logger.Warn("alert",
		"metric", metric,
		"value", value,
		"threshold", threshold,
		"action", action,
	)
}

// LogAbort logs a run abort and its trigger.
// event: "run_aborted"
// Attributes: metric, value, threshold
func (el *EventLogger) LogAbort(metric string, value, threshold float64) {
	el.logger.Error("run_aborted",
		"metric", metric,
		"value", value,
		"threshold", threshold,
	)
}

// LogValidationFailure logs a failed action validation.
// event: "validation_failed"
// Attributes: user_id, scenario, action, check, reason
func (el *EventLogger) LogValidationFailure(userID, scenarioID, action, check, reason string) {
	el.logger.Warn("validation_failed",
		"user_id", userID,
		"scenario", scenarioID,
		"action", action,
		"check", check,
		"reason", reason,
	)
}

// LogStoreFailure logs a failed attempt to persist run results.
// event: "store_failed"
// Attributes: name, error
func (el *EventLogger) LogStoreFailure(name string, err error) {
	el.logger.Error("store_failed",
		"name", name,
		"error", err.Error(),
	)
}

// Global logger management
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &EventLogger{
		logger: slog.New(handler),
	}
}
