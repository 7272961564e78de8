// Package sched ramps virtual users up to the target load, holds it for the
// run duration, and drains everything on the way down.
package sched

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgebench/forgebench/internal/events"
	"github.com/forgebench/forgebench/internal/otel"
	"github.com/forgebench/forgebench/internal/scenario"
	"github.com/forgebench/forgebench/internal/vuser"
)

// DefaultUsersPerBatch is the ramp batch size when none is configured.
const DefaultUsersPerBatch = 10

// DefaultTickInterval is the hold-phase control loop interval.
const DefaultTickInterval = time.Second

// Phase identifies the scheduler's current load phase.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRampUp   Phase = "ramp-up"
	PhaseHold     Phase = "hold"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// Options tunes the scheduler beyond what the load profile carries.
type Options struct {
	// Duration is the total run length including ramp-up.
	Duration time.Duration

	// RampUp is the window over which users are started in batches.
	RampUp time.Duration

	// UsersPerBatch overrides DefaultUsersPerBatch when > 0.
	UsersPerBatch int

	// TickInterval overrides DefaultTickInterval when > 0.
	TickInterval time.Duration

	// Abort is an externally shared flag; when set the scheduler drains
	// immediately. Optional.
	Abort *atomic.Bool

	// Tick is invoked once per hold-phase interval. Optional.
	Tick func(now time.Time)
}

// Scheduler starts executors in ramp batches and keeps them running for the
// hold phase. It never exceeds the profile's target user count.
type Scheduler struct {
	config *vuser.Config
	opts   Options

	executors map[string]*vuser.Executor
	mu        sync.RWMutex

	userCounter atomic.Int64
	phase       atomic.Value // Phase
	started     atomic.Bool

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler over the given executor config.
func NewScheduler(config *vuser.Config, opts Options) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Profile.ConcurrentUsers <= 0 {
		return nil, fmt.Errorf("scheduler: concurrent users must be positive, got %d", config.Profile.ConcurrentUsers)
	}
	if opts.UsersPerBatch <= 0 {
		opts.UsersPerBatch = DefaultUsersPerBatch
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	s := &Scheduler{
		config:    config,
		opts:      opts,
		executors: make(map[string]*vuser.Executor),
	}
	s.phase.Store(PhaseIdle)
	return s, nil
}

// Phase returns the scheduler's current load phase.
func (s *Scheduler) Phase() Phase {
	return s.phase.Load().(Phase)
}

// ActiveUsers returns the number of currently running users.
func (s *Scheduler) ActiveUsers() int {
	return int(s.config.Metrics.ActiveUsers.Load())
}

// Run drives the full ramp-up, hold, ramp-down cycle. It returns once every
// user has drained. Run may be called at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.started.Swap(true) {
		return fmt.Errorf("scheduler: already started")
	}

	start := time.Now()
	end := start.Add(s.opts.Duration)

	s.transition(PhaseIdle, PhaseRampUp)
	if err := s.rampUp(ctx); err != nil {
		s.rampDown()
		return err
	}

	s.transition(PhaseRampUp, PhaseHold)
	s.hold(ctx, end)

	s.transition(PhaseHold, PhaseRampDown)
	s.rampDown()
	s.transition(PhaseRampDown, PhaseDone)
	return nil
}

func (s *Scheduler) transition(from, to Phase) {
	s.phase.Store(to)
	events.GetGlobalEventLogger().LogPhaseTransition(string(from), string(to), s.ActiveUsers())
	otel.GetGlobalMetrics().SetActiveUsers(s.ActiveUsers())
}

// rampUp starts users in batches spread evenly across the ramp window. The
// batch shape follows the profile's distribution.
func (s *Scheduler) rampUp(ctx context.Context) error {
	target := s.config.Profile.ConcurrentUsers
	batches := batchSizes(target, s.opts.UsersPerBatch, s.config.Profile.Distribution)

	var interval time.Duration
	if len(batches) > 1 && s.opts.RampUp > 0 {
		interval = s.opts.RampUp / time.Duration(len(batches))
	}

	for i, size := range batches {
		if err := s.checkStop(ctx); err != nil {
			return err
		}

		s.spawnBatch(ctx, size)
		active := s.ActiveUsers()
		events.GetGlobalEventLogger().LogRampBatch(i+1, size, active, target)
		otel.GetGlobalMetrics().SetActiveUsers(active)
		if s.config.Aggregator != nil {
			s.config.Aggregator.SetConcurrentUsers(active)
		}

		if interval > 0 && i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil
}

// hold keeps the target load running until the end time, invoking the tick
// callback every interval.
func (s *Scheduler) hold(ctx context.Context, end time.Time) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		if s.checkStop(ctx) != nil {
			return
		}
		now := time.Now()
		if !now.Before(end) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.opts.Tick != nil {
				s.opts.Tick(now)
			}
			if s.config.Aggregator != nil {
				s.config.Aggregator.SetConcurrentUsers(s.ActiveUsers())
			}
		}
	}
}

// rampDown stops every executor and waits for all sessions to drain.
func (s *Scheduler) rampDown() {
	s.mu.RLock()
	for _, ex := range s.executors {
		ex.Stop()
	}
	s.mu.RUnlock()

	s.wg.Wait()

	if s.config.Aggregator != nil {
		s.config.Aggregator.SetConcurrentUsers(0)
	}
	otel.GetGlobalMetrics().SetActiveUsers(0)
}

func (s *Scheduler) checkStop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if s.opts.Abort != nil && s.opts.Abort.Load() {
		return context.Canceled
	}
	return nil
}

func (s *Scheduler) spawnBatch(ctx context.Context, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < size; i++ {
		n := s.userCounter.Add(1)
		id := fmt.Sprintf("%s-vu-%d", s.config.TestID, n)
		seed := time.Now().UnixNano() + n

		user := vuser.NewUser(id, seed)
		ex, err := vuser.NewExecutor(user, s.config)
		if err != nil {
			continue
		}
		s.executors[id] = ex

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ex.Run(ctx)
		}()
	}
}

// batchSizes splits the target user count into ramp batches shaped by the
// distribution. The sizes always sum to exactly the target.
func batchSizes(target, perBatch int, dist scenario.Distribution) []int {
	if target <= 0 {
		return nil
	}
	if perBatch <= 0 {
		perBatch = DefaultUsersPerBatch
	}

	switch dist {
	case scenario.DistSpike:
		// Front-load half the users, then ramp the rest normally.
		first := target / 2
		if first == 0 {
			first = target
		}
		sizes := []int{first}
		sizes = append(sizes, evenBatches(target-first, perBatch)...)
		return sizes

	case scenario.DistWave:
		// Alternate large and small batches.
		var sizes []int
		remaining := target
		big := true
		for remaining > 0 {
			size := perBatch / 2
			if big {
				size = perBatch * 2
			}
			if size < 1 {
				size = 1
			}
			if size > remaining {
				size = remaining
			}
			sizes = append(sizes, size)
			remaining -= size
			big = !big
		}
		return sizes

	default:
		return evenBatches(target, perBatch)
	}
}

func evenBatches(target, perBatch int) []int {
	var sizes []int
	for remaining := target; remaining > 0; {
		size := perBatch
		if size > remaining {
			size = remaining
		}
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes
}
