// Package dispatch defines the pluggable action dispatcher the virtual user
// engine drives. Real backends implement Dispatcher; the built-in simulator
// is used by the canonical profiles and tests.
package dispatch

import (
	"context"
	"time"

	"github.com/forgebench/forgebench/internal/scenario"
)

// ErrorType classifies dispatcher failures for retry decisions.
type ErrorType string

const (
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeConnect   ErrorType = "connect"
	ErrorTypeProtocol  ErrorType = "protocol"
	ErrorTypeExecution ErrorType = "execution"
	ErrorTypeCancelled ErrorType = "cancelled"
)

// ActionError is the typed error raised by dispatchers.
type ActionError struct {
	Type      ErrorType
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *ActionError) Error() string {
	if e.Code != "" {
		return string(e.Type) + " (" + e.Code + "): " + e.Message
	}
	return string(e.Type) + ": " + e.Message
}

func (e *ActionError) Unwrap() error { return e.Err }

// Outcome is the result of executing a single action.
type Outcome struct {
	ActionType scenario.ActionType
	StartTime  time.Time
	LatencyMs  int64
	OK         bool
	BytesIn    int64
	BytesOut   int64
	Output     map[string]interface{}
	Error      *ActionError
}

// Dispatcher executes actions against a target system.
// Implementations must honor ctx cancellation and per-action timeouts.
type Dispatcher interface {
	Execute(ctx context.Context, action *scenario.Action) (*Outcome, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, action *scenario.Action) (*Outcome, error)

// Execute calls f.
func (f DispatcherFunc) Execute(ctx context.Context, action *scenario.Action) (*Outcome, error) {
	return f(ctx, action)
}

// DefaultActionTimeout bounds actions that do not set their own timeout.
const DefaultActionTimeout = 30 * time.Second

// WithTimeout wraps a dispatcher so every Execute runs under the action's
// timeout (or DefaultActionTimeout). A deadline hit is reported as a
// non-retryable timeout outcome rather than a bare context error.
func WithTimeout(d Dispatcher) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, action *scenario.Action) (*Outcome, error) {
		timeout := DefaultActionTimeout
		if action.TimeoutMs > 0 {
			timeout = time.Duration(action.TimeoutMs) * time.Millisecond
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		outcome, err := d.Execute(ctx, action)
		if err == nil && outcome != nil {
			return outcome, nil
		}

		if ctx.Err() == context.DeadlineExceeded {
			return &Outcome{
				ActionType: action.Type,
				StartTime:  start,
				LatencyMs:  time.Since(start).Milliseconds(),
				OK:         false,
				Error: &ActionError{
					Type:    ErrorTypeTimeout,
					Code:    "ACTION_TIMEOUT",
					Message: "action exceeded timeout of " + timeout.String(),
					Err:     ctx.Err(),
				},
			}, nil
		}

		return outcome, err
	})
}
