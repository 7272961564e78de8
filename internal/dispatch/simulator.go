package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/forgebench/forgebench/internal/scenario"
)

// SimProfile configures the simulator's behavior for one action type.
type SimProfile struct {
	// BaseLatencyMs is the minimum simulated latency.
	BaseLatencyMs int64

	// JitterMs is the maximum random latency added on top of the base.
	JitterMs int64

	// FailureRate is the probability in [0,1] that an execution fails.
	FailureRate float64
}

// Simulator is a deterministic in-process dispatcher used by the built-in
// profiles and tests. It sleeps for the simulated latency so timing-derived
// metrics behave like a real backend's.
type Simulator struct {
	profiles map[scenario.ActionType]SimProfile
	fallback SimProfile
	rng      *rand.Rand
	mu       sync.Mutex
}

// NewSimulator creates a simulator with the given seed. A zero seed falls
// back to a time-based seed.
func NewSimulator(seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		profiles: make(map[scenario.ActionType]SimProfile),
		fallback: SimProfile{BaseLatencyMs: 1, JitterMs: 3},
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// SetProfile configures simulation for one action type.
func (s *Simulator) SetProfile(t scenario.ActionType, p SimProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[t] = p
}

// SetFallback configures simulation for action types without a profile.
func (s *Simulator) SetFallback(p SimProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = p
}

// Execute simulates one action: sleep for the sampled latency, then fail with
// the configured probability.
func (s *Simulator) Execute(ctx context.Context, action *scenario.Action) (*Outcome, error) {
	s.mu.Lock()
	profile, ok := s.profiles[action.Type]
	if !ok {
		profile = s.fallback
	}
	latency := profile.BaseLatencyMs
	if profile.JitterMs > 0 {
		latency += s.rng.Int63n(profile.JitterMs)
	}
	fail := profile.FailureRate > 0 && s.rng.Float64() < profile.FailureRate
	s.mu.Unlock()

	start := time.Now()
	if latency > 0 {
		select {
		case <-ctx.Done():
			return &Outcome{
				ActionType: action.Type,
				StartTime:  start,
				LatencyMs:  time.Since(start).Milliseconds(),
				OK:         false,
				Error: &ActionError{
					Type:    ErrorTypeCancelled,
					Code:    "CANCELLED",
					Message: "action cancelled",
					Err:     ctx.Err(),
				},
			}, nil
		case <-time.After(time.Duration(latency) * time.Millisecond):
		}
	}

	outcome := &Outcome{
		ActionType: action.Type,
		StartTime:  start,
		LatencyMs:  time.Since(start).Milliseconds(),
		OK:         !fail,
		BytesOut:   128,
	}

	if fail {
		outcome.Error = &ActionError{
			Type:      ErrorTypeExecution,
			Code:      "SIMULATED_FAILURE",
			Message:   "simulated execution failure",
			Retryable: true,
		}
	} else {
		outcome.Output = map[string]interface{}{"status": "ok"}
	}

	return outcome, nil
}
