// Package vuser provides the virtual user engine for forgebench load generation.
package vuser

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// UserState represents the state of a virtual user.
type UserState string

const (
	// StateIdle indicates the user has not started.
	StateIdle UserState = "idle"

	// StateRunning indicates the user is executing its session loop.
	StateRunning UserState = "running"

	// StateStopped indicates the user was stopped externally.
	StateStopped UserState = "stopped"

	// StateSessionExpired indicates the user's session duration elapsed.
	StateSessionExpired UserState = "session-expired"
)

// User represents a single virtual user.
type User struct {
	// ID is the unique user identifier.
	ID string

	// RNGSeed drives the user's think-time jitter and data set draws.
	RNGSeed int64

	// StartedAt is when the user started.
	StartedAt time.Time

	// StoppedAt is when the user stopped (zero if still running).
	StoppedAt time.Time

	// ActionsCompleted is the count of successful actions.
	ActionsCompleted atomic.Int64

	// ActionsFailed is the count of failed actions.
	ActionsFailed atomic.Int64

	state atomic.Value // UserState

	mu            sync.Mutex
	responseTimes []int64
}

// NewUser creates a virtual user in the idle state.
func NewUser(id string, seed int64) *User {
	u := &User{
		ID:      id,
		RNGSeed: seed,
	}
	u.state.Store(StateIdle)
	return u
}

// State returns the current user state.
func (u *User) State() UserState {
	return u.state.Load().(UserState)
}

// SetState sets the user state.
func (u *User) SetState(state UserState) {
	u.state.Store(state)
}

// RecordResponseTime appends one latency observation to the user's buffer.
func (u *User) RecordResponseTime(latencyMs int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.responseTimes = append(u.responseTimes, latencyMs)
}

// ResponseTimes returns a copy of the user's latency observations.
func (u *User) ResponseTimes() []int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]int64, len(u.responseTimes))
	copy(out, u.responseTimes)
	return out
}

// ThinkTimeSampler draws per-action pauses with seeded jitter.
type ThinkTimeSampler struct {
	baseMs   int64
	jitterMs int64
	rng      *rand.Rand
	mu       sync.Mutex
}

// NewThinkTimeSampler creates a sampler for base+jitter think time.
func NewThinkTimeSampler(baseMs, jitterMs int64, seed int64) *ThinkTimeSampler {
	return &ThinkTimeSampler{
		baseMs:   baseMs,
		jitterMs: jitterMs,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Sample returns the next think time in milliseconds.
func (s *ThinkTimeSampler) Sample() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	thinkTime := s.baseMs
	if s.jitterMs > 0 {
		thinkTime += s.rng.Int63n(s.jitterMs)
	}
	return thinkTime
}

// EngineMetrics contains engine-wide counters shared by all executors.
type EngineMetrics struct {
	// ActiveUsers is the current number of running users.
	ActiveUsers atomic.Int64

	// TotalUsersCreated is the total number of users created.
	TotalUsersCreated atomic.Int64

	// TotalActions is the total number of actions dispatched.
	TotalActions atomic.Int64

	// SuccessfulActions is the number of successful actions.
	SuccessfulActions atomic.Int64

	// FailedActions is the number of failed actions.
	FailedActions atomic.Int64

	// SkippedActions counts actions skipped after a critical failure.
	SkippedActions atomic.Int64

	// ThinkTimeTotal is the total think time in milliseconds.
	ThinkTimeTotal atomic.Int64
}

// NewEngineMetrics creates a new EngineMetrics instance.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{}
}

// Snapshot returns a copy of the current counters.
func (m *EngineMetrics) Snapshot() EngineMetricsSnapshot {
	return EngineMetricsSnapshot{
		ActiveUsers:       m.ActiveUsers.Load(),
		TotalUsersCreated: m.TotalUsersCreated.Load(),
		TotalActions:      m.TotalActions.Load(),
		SuccessfulActions: m.SuccessfulActions.Load(),
		FailedActions:     m.FailedActions.Load(),
		SkippedActions:    m.SkippedActions.Load(),
		ThinkTimeTotal:    m.ThinkTimeTotal.Load(),
	}
}

// EngineMetricsSnapshot is a point-in-time snapshot of engine counters.
type EngineMetricsSnapshot struct {
	ActiveUsers       int64
	TotalUsersCreated int64
	TotalActions      int64
	SuccessfulActions int64
	FailedActions     int64
	SkippedActions    int64
	ThinkTimeTotal    int64
}

// EngineError represents an error from the virtual user engine.
type EngineError struct {
	Op     string // Operation that failed
	UserID string // User ID (if applicable)
	Err    error  // Underlying error
}

func (e *EngineError) Error() string {
	if e.UserID != "" {
		return "vuser " + e.UserID + ": " + e.Op + ": " + e.Err.Error()
	}
	return "vuser engine: " + e.Op + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Common engine errors.
var (
	ErrInvalidConfig = &EngineError{Op: "create", Err: errInvalidConfig}
	ErrNoSelector    = &EngineError{Op: "create", Err: errNoSelector}
	ErrNoDispatcher  = &EngineError{Op: "create", Err: errNoDispatcher}
)

// Internal error values.
var (
	errInvalidConfig = errorString("invalid configuration")
	errNoSelector    = errorString("no scenario selector")
	errNoDispatcher  = errorString("no dispatcher")
)

type errorString string

func (e errorString) Error() string { return string(e) }
