package vuser

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/forgebench/forgebench/internal/dispatch"
	"github.com/forgebench/forgebench/internal/events"
	"github.com/forgebench/forgebench/internal/metrics"
	"github.com/forgebench/forgebench/internal/otel"
	"github.com/forgebench/forgebench/internal/scenario"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds the shared collaborators for all executors in a run.
type Config struct {
	TestID     string
	Profile    scenario.LoadProfile
	Selector   *scenario.Selector
	Dispatcher dispatch.Dispatcher
	Aggregator *metrics.Aggregator
	Metrics    *EngineMetrics
}

// Validate checks that the config can drive an executor.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.Selector == nil {
		return ErrNoSelector
	}
	if c.Dispatcher == nil {
		return ErrNoDispatcher
	}
	return nil
}

// Executor drives one virtual user's session loop: pick a weighted scenario,
// run its actions through the dispatcher, report outcomes, pause for think
// time, repeat until the session expires or the user is stopped.
type Executor struct {
	user       *User
	config     *Config
	dispatcher dispatch.Dispatcher
	thinkTime  *ThinkTimeSampler
	tracer     *otel.Tracer
	stopped    atomic.Bool
}

// NewExecutor creates an executor for one user. The dispatcher is wrapped so
// every action runs under its timeout.
func NewExecutor(user *User, config *Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Metrics == nil {
		config.Metrics = NewEngineMetrics()
	}
	return &Executor{
		user:       user,
		config:     config,
		dispatcher: dispatch.WithTimeout(config.Dispatcher),
		thinkTime:  NewThinkTimeSampler(config.Profile.ThinkTimeMs, config.Profile.ThinkTimeJitterMs, user.RNGSeed+1),
		tracer:     otel.GetGlobalTracer(),
	}, nil
}

// User returns the executor's virtual user.
func (e *Executor) User() *User {
	return e.user
}

// Stop requests the session loop to exit before its next iteration.
func (e *Executor) Stop() {
	e.stopped.Store(true)
}

// SetTracer overrides the tracer, mainly for tests.
func (e *Executor) SetTracer(t *otel.Tracer) {
	e.tracer = t
}

// Run executes the session loop until the context is cancelled, Stop is
// called, or the session duration elapses.
func (e *Executor) Run(ctx context.Context) {
	e.user.SetState(StateRunning)
	e.user.StartedAt = time.Now()
	e.config.Metrics.ActiveUsers.Add(1)
	e.config.Metrics.TotalUsersCreated.Add(1)

	defer func() {
		e.config.Metrics.ActiveUsers.Add(-1)
		e.user.StoppedAt = time.Now()
	}()

	var deadline time.Time
	if e.config.Profile.SessionDurationMs > 0 {
		deadline = e.user.StartedAt.Add(time.Duration(e.config.Profile.SessionDurationMs) * time.Millisecond)
	}

	for {
		select {
		case <-ctx.Done():
			e.user.SetState(StateStopped)
			return
		default:
		}

		if e.stopped.Load() {
			e.user.SetState(StateStopped)
			return
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			e.user.SetState(StateSessionExpired)
			return
		}

		sc := e.config.Selector.Pick()
		e.runScenario(ctx, sc)
	}
}

// runScenario executes one iteration of the picked scenario. A failed
// critical action skips the remaining actions of the iteration.
func (e *Executor) runScenario(ctx context.Context, sc *scenario.Scenario) {
	var data map[string]interface{}
	if sc.DataSet != nil {
		data = sc.DataSet()
	}

	for i := range sc.Actions {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if e.stopped.Load() {
			return
		}

		action := &sc.Actions[i]
		ok := e.executeAction(ctx, sc, action, data)

		if !ok && action.Critical {
			e.config.Metrics.SkippedActions.Add(int64(len(sc.Actions) - i - 1))
			return
		}

		e.pause(ctx)
	}
}

// executeAction dispatches one action and reports its outcome. Returns false
// when the dispatch failed or a validation did not hold.
func (e *Executor) executeAction(ctx context.Context, sc *scenario.Scenario, action *scenario.Action, data map[string]interface{}) bool {
	e.config.Metrics.TotalActions.Add(1)

	merged := *action
	merged.Params = mergeParams(action.Params, data)

	spanCtx, span := e.tracer.StartActionSpan(ctx, otel.ActionSpanOptions{
		TestID:   e.config.TestID,
		UserID:   e.user.ID,
		Scenario: sc.ID,
		Action:   string(action.Type),
	})
	defer span.End()

	dispatchStart := time.Now()
	outcome, err := e.dispatcher.Execute(spanCtx, &merged)
	if err != nil || outcome == nil {
		e.recordFailure(sc, action, time.Since(dispatchStart).Milliseconds(), "dispatch error: "+errString(err))
		otel.RecordError(span, err, "internal", false)
		return false
	}

	e.user.RecordResponseTime(outcome.LatencyMs)
	span.SetAttributes(attribute.Int64("latency_ms", outcome.LatencyMs))

	sample := metrics.Sample{
		Scenario:  sc.ID,
		Action:    string(action.Type),
		LatencyMs: outcome.LatencyMs,
		Bytes:     outcome.BytesIn + outcome.BytesOut,
	}

	if !outcome.OK {
		reason := "action failed"
		errType := "internal"
		// Assign through a plain error so a nil *ActionError stays a nil
		// interface for RecordError's guard.
		var actionErr error
		retryable := false
		if outcome.Error != nil {
			reason = outcome.Error.Error()
			errType = string(outcome.Error.Type)
			actionErr = outcome.Error
			retryable = outcome.Error.Retryable
		}
		e.reportFailure(sample, sc, action, reason)
		otel.RecordError(span, actionErr, errType, retryable)
		e.recordOTelLatency(spanCtx, sc, action, outcome.LatencyMs, false, errType)
		return false
	}

	if reasons := evaluateValidations(outcome, action.Validations); len(reasons) > 0 {
		for _, r := range reasons {
			events.GetGlobalEventLogger().LogValidationFailure(e.user.ID, sc.ID, string(action.Type), r.Check, r.Reason)
		}
		e.reportFailure(sample, sc, action, "validation failed: "+reasons[0].Reason)
		span.SetAttributes(attribute.Bool("validation_failed", true))
		e.recordOTelLatency(spanCtx, sc, action, outcome.LatencyMs, false, "validation")
		return false
	}

	e.user.ActionsCompleted.Add(1)
	e.config.Metrics.SuccessfulActions.Add(1)
	if e.config.Aggregator != nil {
		e.config.Aggregator.ReportSuccess(sample)
	}
	span.SetAttributes(attribute.Bool("ok", true))
	e.recordOTelLatency(spanCtx, sc, action, outcome.LatencyMs, true, "")
	return true
}

func (e *Executor) reportFailure(sample metrics.Sample, sc *scenario.Scenario, action *scenario.Action, reason string) {
	e.user.ActionsFailed.Add(1)
	e.config.Metrics.FailedActions.Add(1)
	if e.config.Aggregator != nil {
		e.config.Aggregator.ReportFailure(sample, metrics.StressError{
			Timestamp: time.Now(),
			Scenario:  sc.ID,
			Action:    string(action.Type),
			Error:     reason,
			Context:   map[string]interface{}{"user_id": e.user.ID},
		})
	}
}

func (e *Executor) recordFailure(sc *scenario.Scenario, action *scenario.Action, latencyMs int64, reason string) {
	e.reportFailure(metrics.Sample{
		Scenario:  sc.ID,
		Action:    string(action.Type),
		LatencyMs: latencyMs,
	}, sc, action, reason)
}

func (e *Executor) recordOTelLatency(ctx context.Context, sc *scenario.Scenario, action *scenario.Action, latencyMs int64, ok bool, errType string) {
	m := otel.GetGlobalMetrics()
	if m == nil {
		return
	}
	m.RecordActionLatency(ctx, sc.ID, string(action.Type), float64(latencyMs), ok)
	if !ok && errType != "" {
		m.RecordError(ctx, errType)
	}
}

// pause sleeps for the sampled think time, waking early on cancellation.
func (e *Executor) pause(ctx context.Context) {
	thinkTime := e.thinkTime.Sample()
	if thinkTime <= 0 {
		return
	}
	e.config.Metrics.ThinkTimeTotal.Add(thinkTime)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(thinkTime) * time.Millisecond):
	}
}

// mergeParams overlays data set values on top of the action's static params.
// Neither input map is mutated.
func mergeParams(params, data map[string]interface{}) map[string]interface{} {
	if len(data) == 0 {
		return params
	}
	merged := make(map[string]interface{}, len(params)+len(data))
	for k, v := range params {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	return merged
}

func errString(err error) string {
	if err == nil {
		return "nil outcome"
	}
	return err.Error()
}
