// Package runner owns the stress test lifecycle: it wires the scenario
// selector, dispatcher, scheduler, aggregator, and alert monitor together,
// runs the load across a worker pool, and produces one TestResult per run.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgebench/forgebench/internal/alerting"
	"github.com/forgebench/forgebench/internal/analysis"
	"github.com/forgebench/forgebench/internal/config"
	"github.com/forgebench/forgebench/internal/dispatch"
	"github.com/forgebench/forgebench/internal/events"
	"github.com/forgebench/forgebench/internal/metrics"
	"github.com/forgebench/forgebench/internal/otel"
	"github.com/forgebench/forgebench/internal/scenario"
	"github.com/forgebench/forgebench/internal/sched"
	"github.com/forgebench/forgebench/internal/telemetry"
	"github.com/forgebench/forgebench/internal/vuser"
	"github.com/google/uuid"
)

// Options configures a Runner's collaborators. All fields are optional.
type Options struct {
	// Probe samples host resources; nil uses the gopsutil host probe.
	Probe metrics.ResourceProbe

	// Dispatcher executes actions; nil uses the built-in simulator seeded
	// from the run config.
	Dispatcher dispatch.Dispatcher

	// Sink persists finished results; store failures are logged, never fatal.
	Sink telemetry.Sink

	// Recorder streams the run's timeline and errors as JSONL.
	Recorder *telemetry.Recorder

	// Logger overrides the global event logger.
	Logger *events.EventLogger
}

// Runner executes stress test configs and retains results in memory,
// keyed by test name.
type Runner struct {
	opts Options
	pool *workerPool

	mu      sync.Mutex
	history map[string][]*TestResult
	active  map[string]*atomic.Bool
}

// New creates a runner. The worker pool is sized min(NumCPU, 4) and
// built lazily on the first run.
func New(opts Options) *Runner {
	size := runtime.NumCPU()
	if size > config.MaxWorkerPoolSize {
		size = config.MaxWorkerPoolSize
	}
	return &Runner{
		opts:    opts,
		pool:    newWorkerPool(size),
		history: make(map[string][]*TestResult),
		active:  make(map[string]*atomic.Bool),
	}
}

func (r *Runner) logger() *events.EventLogger {
	if r.opts.Logger != nil {
		return r.opts.Logger
	}
	return events.GetGlobalEventLogger()
}

// Run executes one stress test to completion and returns its result.
// Worker and scheduler errors are recorded into the result rather than
// failing the run; only setup errors are returned.
func (r *Runner) Run(ctx context.Context, cfg *config.StressTestConfig) (*TestResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("runner: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	selector, err := scenario.NewSelector(cfg.Scenarios, seed)
	if err != nil {
		return nil, err
	}

	dispatcher := r.opts.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.NewSimulator(seed + 1)
	}

	testID := uuid.NewString()
	logger := r.logger()

	abort := &atomic.Bool{}
	r.mu.Lock()
	r.active[testID] = abort
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, testID)
		r.mu.Unlock()
	}()

	workers := r.pool.size
	if workers > cfg.TargetLoad.ConcurrentUsers {
		workers = cfg.TargetLoad.ConcurrentUsers
	}

	host := metrics.NewAggregator(r.opts.Probe)
	subs := make([]*metrics.Aggregator, workers)
	for i := range subs {
		subs[i] = metrics.NewAggregator(noopProbe())
	}
	engine := vuser.NewEngineMetrics()

	start := time.Now()
	source := &pooledSource{host: host, subs: subs, start: start}
	interval := time.Duration(cfg.Monitoring.IntervalMs) * time.Millisecond
	monitor := alerting.NewMonitor(cfg.Monitoring.Alerts, source, host, interval, abort)

	// Build every partition's scheduler before starting any of them.
	schedulers := make([]*sched.Scheduler, workers)
	partitions := splitUsers(cfg.TargetLoad.ConcurrentUsers, workers)
	for w := range schedulers {
		profile := cfg.TargetLoad
		profile.ConcurrentUsers = partitions[w]

		vcfg := &vuser.Config{
			TestID:     fmt.Sprintf("%s-w%d", testID, w),
			Profile:    profile,
			Selector:   selector,
			Dispatcher: dispatcher,
			Aggregator: subs[w],
			Metrics:    engine,
		}
		s, err := sched.NewScheduler(vcfg, sched.Options{
			Duration: time.Duration(cfg.DurationMs) * time.Millisecond,
			RampUp:   time.Duration(cfg.RampUpTimeMs) * time.Millisecond,
			Abort:    abort,
		})
		if err != nil {
			return nil, fmt.Errorf("runner: scheduler for worker %d: %w", w, err)
		}
		schedulers[w] = s
	}

	host.Start(start)
	host.AddTimeline("run_started", float64(cfg.TargetLoad.ConcurrentUsers), metrics.EntryMilestone)
	logger.LogRunStarted(cfg.Name, cfg.TargetLoad.ConcurrentUsers, cfg.DurationMs, cfg.RampUpTimeMs)
	if r.opts.Recorder != nil {
		r.opts.Recorder.RecordMilestone(testID, "run_started")
	}

	// Control loop: sample resources, refresh the user gauge, evaluate
	// alerts. One goroutine per run, never concurrent with itself.
	stopCtl := make(chan struct{})
	var ctlWG sync.WaitGroup
	ctlWG.Add(1)
	go func() {
		defer ctlWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCtl:
				return
			case now := <-ticker.C:
				activeUsers := int(engine.ActiveUsers.Load())
				host.Tick(now)
				host.SetConcurrentUsers(activeUsers)
				otel.GetGlobalMetrics().SetActiveUsers(activeUsers)
				monitor.Evaluate(now)
			}
		}
	}()

	r.pool.acquire()
	var runWG sync.WaitGroup
	workerErrs := make(chan error, workers)
	for w := range schedulers {
		s := schedulers[w]
		idx := w
		runWG.Add(1)
		r.pool.submit(func() {
			defer runWG.Done()
			defer func() {
				if p := recover(); p != nil {
					subs[idx].RecordError(metrics.StressError{
						Error:   fmt.Sprintf("worker %d panicked: %v", idx, p),
						Context: map[string]interface{}{"worker": idx},
					})
				}
			}()
			if err := s.Run(ctx); err != nil {
				workerErrs <- err
			}
		})
	}
	runWG.Wait()
	r.pool.release()
	close(stopCtl)
	ctlWG.Wait()
	close(workerErrs)

	end := time.Now()
	host.Finish(end)
	host.SetConcurrentUsers(int(engine.ActiveUsers.Load()))
	for _, sub := range subs {
		host.Merge(sub)
	}
	for werr := range workerErrs {
		// Aborts and context cancellation surface through the status,
		// not the error list.
		if errors.Is(werr, context.Canceled) {
			continue
		}
		host.RecordError(metrics.StressError{Error: werr.Error()})
	}
	host.AddTimeline("run_completed", 0, metrics.EntryMilestone)

	final := host.Snapshot()
	eval := analysis.Evaluate(final, cfg.SuccessCriteria)
	status := analysis.ResolveStatus(abort.Load(), eval.Passed)

	cfgCopy := *cfg
	result := &TestResult{
		ID:         testID,
		Name:       cfg.Name,
		Status:     status,
		Config:     &cfgCopy,
		StartTime:  start,
		EndTime:    end,
		Metrics:    final,
		Timeline:   host.Timeline(),
		Errors:     host.Errors(),
		Evaluation: eval,
	}

	r.finish(ctx, result, logger)
	return result, nil
}

// finish records the result exactly once: history, sink, recorder, log.
func (r *Runner) finish(ctx context.Context, result *TestResult, logger *events.EventLogger) {
	r.mu.Lock()
	r.history[result.Name] = append(r.history[result.Name], result)
	r.mu.Unlock()

	if r.opts.Sink != nil {
		data, err := json.Marshal(result)
		if err == nil {
			err = r.opts.Sink.Store(ctx, result.ID, data)
		}
		if err != nil {
			logger.LogStoreFailure(result.Name, err)
		}
	}

	if rec := r.opts.Recorder; rec != nil {
		for _, entry := range result.Timeline {
			rec.RecordTimeline(result.ID, entry)
		}
		for _, serr := range result.Errors {
			rec.RecordError(result.ID, serr)
		}
		rec.RecordMilestone(result.ID, "run_completed")
	}

	logger.LogRunCompleted(result.Name, string(result.Status),
		result.Metrics.Requests.Total, result.Metrics.Requests.ErrorRate,
		result.EndTime.Sub(result.StartTime).Milliseconds())
}

// Abort requests early termination of a running test. The schedulers
// drain cooperatively; in-flight actions finish under their own timeouts.
func (r *Runner) Abort(testID string) error {
	r.mu.Lock()
	abort, ok := r.active[testID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: no active test %q", testID)
	}
	abort.Store(true)
	return nil
}

// Results returns all retained results for a test name, oldest first.
func (r *Runner) Results(name string) []*TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TestResult, len(r.history[name]))
	copy(out, r.history[name])
	return out
}

// ComparisonReport compares the latest result of each named test, in the
// order given. Rebuilding the same report never mutates stored results.
func (r *Runner) ComparisonReport(names ...string) (*analysis.ComparisonReport, error) {
	summaries := make([]analysis.RunSummary, 0, len(names))

	r.mu.Lock()
	for _, name := range names {
		results := r.history[name]
		if len(results) == 0 {
			r.mu.Unlock()
			return nil, fmt.Errorf("runner: no results for test %q", name)
		}
		summaries = append(summaries, results[len(results)-1].Summary())
	}
	r.mu.Unlock()

	return analysis.BuildComparison(summaries), nil
}

// pooledSource exposes merged metrics from the run's partitions to the
// alert monitor. Host-level metrics come from the resource-sampling
// aggregator; request metrics are merged fresh on every read so strict
// threshold comparisons see exact values.
type pooledSource struct {
	host  *metrics.Aggregator
	subs  []*metrics.Aggregator
	start time.Time
}

func (p *pooledSource) MetricValue(name string) (float64, bool) {
	switch name {
	case "memory", "cpu", "concurrent_users":
		return p.host.MetricValue(name)
	}

	merged := metrics.NewAggregator(noopProbe())
	merged.Start(p.start)
	for _, sub := range p.subs {
		merged.Merge(sub)
	}
	return merged.MetricValue(name)
}

func noopProbe() metrics.ResourceProbe {
	return metrics.ResourceProbeFunc(func() (metrics.ResourceSample, error) {
		return metrics.ResourceSample{}, nil
	})
}

// splitUsers partitions a user count across workers as evenly as
// possible; the sizes always sum to the total.
func splitUsers(total, workers int) []int {
	sizes := make([]int, workers)
	base := total / workers
	rem := total % workers
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}
