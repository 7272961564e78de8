package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgebench/forgebench/internal/metrics"
)

// Recorder moves run records from producers to the JSONL emitter through
// a bounded queue. Producers never block on output I/O.
type Recorder struct {
	config  *RecorderConfig
	queue   *BoundedQueue
	emitter *Emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool
}

// NewRecorder creates a recorder writing to the given emitter. A nil
// config uses defaults.
func NewRecorder(config *RecorderConfig, emitter *Emitter) *Recorder {
	defaults := DefaultRecorderConfig()

	if config == nil {
		config = defaults
	}

	cfg := *config
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	return &Recorder{
		config:  &cfg,
		queue:   NewBoundedQueue(cfg.QueueSize),
		emitter: emitter,
	}
}

// Start launches the background drain loop. Calling Start twice is a
// no-op.
func (r *Recorder) Start(ctx context.Context) error {
	if r.started.Swap(true) {
		return nil
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.processLoop()
	return nil
}

// Stop drains the queue, flushes the emitter, and closes output. The
// context bounds how long to wait for the drain.
func (r *Recorder) Stop(ctx context.Context) error {
	if r.closed.Swap(true) {
		return nil
	}

	if r.cancel != nil {
		r.cancel()
	}

	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.emitter != nil {
		return r.emitter.Close()
	}
	return nil
}

// RecordTimeline enqueues a timeline entry. Metric entries may be shed
// under backpressure; alert and milestone entries never are.
func (r *Recorder) RecordTimeline(testID string, entry metrics.TimelineEntry) {
	if r.closed.Load() {
		return
	}

	e := entry
	r.queue.Enqueue(&RunRecord{
		Version:   RecordVersion,
		Type:      "timeline",
		TestID:    testID,
		Timestamp: entry.Timestamp,
		Timeline:  &e,
		Tier:      tierFor(entry.Type),
	})
}

// RecordError enqueues a run error at tier 1.
func (r *Recorder) RecordError(testID string, stressErr metrics.StressError) {
	if r.closed.Load() {
		return
	}

	e := stressErr
	r.queue.Enqueue(&RunRecord{
		Version:   RecordVersion,
		Type:      "error",
		TestID:    testID,
		Timestamp: stressErr.Timestamp,
		Error:     &e,
		Tier:      Tier1Error,
	})
}

// RecordMilestone enqueues a lifecycle milestone. Never shed.
func (r *Recorder) RecordMilestone(testID, event string) {
	if r.closed.Load() {
		return
	}

	now := time.Now()
	r.queue.Enqueue(&RunRecord{
		Version:   RecordVersion,
		Type:      "timeline",
		TestID:    testID,
		Timestamp: now,
		Timeline: &metrics.TimelineEntry{
			Timestamp: now,
			Event:     event,
			Type:      metrics.EntryMilestone,
		},
		Tier: Tier0Lifecycle,
	})
}

func (r *Recorder) processLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.drainQueue()
			return
		case <-ticker.C:
			r.processBatch()
		}
	}
}

func (r *Recorder) processBatch() {
	records := r.queue.TryDequeueBatch(r.config.BatchSize)
	if len(records) == 0 || r.emitter == nil {
		return
	}

	for _, record := range records {
		if err := r.emitter.EmitRecord(record); err != nil {
			continue
		}
	}
}

func (r *Recorder) drainQueue() {
	for {
		records := r.queue.TryDequeueBatch(r.config.BatchSize)
		if len(records) == 0 {
			break
		}

		if r.emitter == nil {
			continue
		}
		for _, record := range records {
			r.emitter.EmitRecord(record)
		}
	}

	if r.emitter != nil {
		r.emitter.Flush()
	}
}

// QueueStats reports the state of the internal queue.
func (r *Recorder) QueueStats() QueueStats {
	return r.queue.Stats()
}
