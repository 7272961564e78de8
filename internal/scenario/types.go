// Package scenario defines the load profile and weighted scenario model for forgebench.
package scenario

import "fmt"

// Distribution describes the traffic shape applied during a run.
type Distribution string

const (
	// DistConstant ramps to the target and holds it flat.
	DistConstant Distribution = "constant"

	// DistRamp increases batch sizes linearly across the ramp window.
	DistRamp Distribution = "ramp"

	// DistSpike front-loads most users into the first batches.
	DistSpike Distribution = "spike"

	// DistWave alternates large and small batches.
	DistWave Distribution = "wave"
)

// LoadProfile describes the target traffic shape for a run. Immutable once a run starts.
type LoadProfile struct {
	// ConcurrentUsers is the steady-state virtual user count.
	ConcurrentUsers int `json:"concurrent_users" yaml:"concurrent_users"`

	// RequestsPerSecond is the optional global rate target (0 = unlimited).
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`

	// SessionDurationMs bounds each virtual user's session loop.
	SessionDurationMs int64 `json:"session_duration_ms" yaml:"session_duration_ms"`

	// ThinkTimeMs is the base pause between actions.
	ThinkTimeMs int64 `json:"think_time_ms,omitempty" yaml:"think_time_ms,omitempty"`

	// ThinkTimeJitterMs is the maximum random jitter added to think time.
	ThinkTimeJitterMs int64 `json:"think_time_jitter_ms,omitempty" yaml:"think_time_jitter_ms,omitempty"`

	// Distribution selects the ramp curve.
	Distribution Distribution `json:"distribution,omitempty" yaml:"distribution,omitempty"`
}

// ActionType identifies the kind of simulated work an action performs.
type ActionType string

const (
	ActionCreateSession ActionType = "create-session"
	ActionExecuteCode   ActionType = "execute-code"
	ActionAPICall       ActionType = "api-call"
	ActionDatabaseQuery ActionType = "database-query"
	ActionFileOperation ActionType = "file-operation"
)

// ValidationType identifies what a validation inspects.
type ValidationType string

const (
	ValidateResponseTime ValidationType = "response-time"
	ValidateStatus       ValidationType = "status"
	ValidateContent      ValidationType = "content"
	ValidateErrorRate    ValidationType = "error-rate"
)

// Condition is the comparator applied by a validation.
type Condition string

const (
	CondLessThan    Condition = "less-than"
	CondGreaterThan Condition = "greater-than"
	CondEquals      Condition = "equals"
	CondContains    Condition = "contains"
)

// Validation is a declarative check evaluated after an action completes.
type Validation struct {
	Type      ValidationType `json:"type" yaml:"type"`
	Condition Condition      `json:"condition" yaml:"condition"`
	Value     interface{}    `json:"value" yaml:"value"`
}

// Action is a stateless descriptor executed by the pluggable dispatcher.
type Action struct {
	Type        ActionType             `json:"type" yaml:"type"`
	Params      map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Validations []Validation           `json:"validations,omitempty" yaml:"validations,omitempty"`

	// TimeoutMs bounds a single dispatch (0 = dispatcher default).
	TimeoutMs int64 `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`

	// Critical marks the action as part of the scenario's critical path.
	// A failed validation on a critical action skips the remaining actions.
	Critical bool `json:"critical,omitempty" yaml:"critical,omitempty"`
}

// DataSet generates per-iteration parameter overrides for a scenario.
type DataSet func() map[string]interface{}

// Scenario is a weighted, named sequence of actions.
type Scenario struct {
	ID      string   `json:"id" yaml:"id"`
	Weight  int      `json:"weight" yaml:"weight"`
	Actions []Action `json:"actions" yaml:"actions"`

	// DataSet is optional; when set it is invoked once per scenario iteration.
	DataSet DataSet `json:"-" yaml:"-"`
}

// TotalWeight returns the sum of all scenario weights.
func TotalWeight(scenarios []Scenario) int {
	total := 0
	for i := range scenarios {
		total += scenarios[i].Weight
	}
	return total
}

// Validate checks structural invariants on a scenario list.
func Validate(scenarios []Scenario) error {
	if len(scenarios) == 0 {
		return ErrNoScenarios
	}
	for i := range scenarios {
		s := &scenarios[i]
		if s.ID == "" {
			return fmt.Errorf("scenario %d: %w", i, ErrMissingID)
		}
		if s.Weight < 0 || s.Weight > 100 {
			return fmt.Errorf("scenario %q: %w: %d", s.ID, ErrBadWeight, s.Weight)
		}
		if len(s.Actions) == 0 {
			return fmt.Errorf("scenario %q: %w", s.ID, ErrNoActions)
		}
	}
	if TotalWeight(scenarios) <= 0 {
		return ErrZeroWeight
	}
	return nil
}

// Sentinel errors for scenario validation.
var (
	ErrNoScenarios = errorString("no scenarios configured")
	ErrMissingID   = errorString("missing scenario id")
	ErrBadWeight   = errorString("weight outside 0..100")
	ErrNoActions   = errorString("scenario has no actions")
	ErrZeroWeight  = errorString("total scenario weight is zero")
)

type errorString string

func (e errorString) Error() string { return string(e) }
