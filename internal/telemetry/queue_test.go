package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/forgebench/forgebench/internal/metrics"
)

func record(tier RecordTier, event string) *RunRecord {
	return &RunRecord{
		Version:   RecordVersion,
		Type:      "timeline",
		TestID:    "q-test",
		Timestamp: time.Now(),
		Timeline:  &metrics.TimelineEntry{Event: event, Type: metrics.EntryMetric},
		Tier:      tier,
	}
}

func TestQueueShedsTier2First(t *testing.T) {
	q := NewBoundedQueue(3)

	for i := 0; i < 3; i++ {
		if !q.Enqueue(record(Tier2Metric, fmt.Sprintf("m%d", i))) {
			t.Fatalf("enqueue %d failed on non-full queue", i)
		}
	}

	if !q.Enqueue(record(Tier1Error, "err")) {
		t.Fatal("tier 1 should displace a tier 2 record")
	}

	stats := q.Stats()
	if stats.DroppedTier2 != 1 {
		t.Errorf("dropped tier2 = %d, want 1", stats.DroppedTier2)
	}
	if stats.Depth != 3 {
		t.Errorf("depth = %d, want 3", stats.Depth)
	}
}

func TestQueueTier0NeverDropped(t *testing.T) {
	q := NewBoundedQueue(2)

	q.Enqueue(record(Tier0Lifecycle, "start"))
	q.Enqueue(record(Tier0Lifecycle, "alert"))

	// Full of tier 0; tier 0 still goes in, past capacity.
	if !q.Enqueue(record(Tier0Lifecycle, "abort")) {
		t.Error("tier 0 record dropped")
	}
	if q.Len() != 3 {
		t.Errorf("len = %d, want 3", q.Len())
	}

	// Nothing sheddable, so lower tiers are rejected.
	if q.Enqueue(record(Tier2Metric, "m")) {
		t.Error("tier 2 accepted into queue full of tier 0")
	}
	if q.Enqueue(record(Tier1Error, "e")) {
		t.Error("tier 1 accepted into queue full of tier 0")
	}
}

func TestQueueTier2DroppedWhenOnlyTier1Present(t *testing.T) {
	q := NewBoundedQueue(2)
	q.Enqueue(record(Tier1Error, "e1"))
	q.Enqueue(record(Tier1Error, "e2"))

	if q.Enqueue(record(Tier2Metric, "m")) {
		t.Error("tier 2 should not displace tier 1")
	}
	if got := q.Stats().DroppedTier2; got != 1 {
		t.Errorf("dropped tier2 = %d", got)
	}
}

func TestQueueFIFOAndBatch(t *testing.T) {
	q := NewBoundedQueue(10)
	for i := 0; i < 5; i++ {
		q.Enqueue(record(Tier1Error, fmt.Sprintf("e%d", i)))
	}

	batch := q.TryDequeueBatch(3)
	if len(batch) != 3 {
		t.Fatalf("batch = %d", len(batch))
	}
	if batch[0].Timeline.Event != "e0" || batch[2].Timeline.Event != "e2" {
		t.Errorf("batch order: %s, %s", batch[0].Timeline.Event, batch[2].Timeline.Event)
	}

	if rest := q.TryDequeueBatch(10); len(rest) != 2 {
		t.Errorf("remaining = %d", len(rest))
	}
	if empty := q.TryDequeueBatch(10); empty != nil {
		t.Errorf("empty queue returned batch: %v", empty)
	}
}

func TestQueueCloseUnblocksDequeue(t *testing.T) {
	q := NewBoundedQueue(10)

	done := make(chan *RunRecord, 1)
	go func() { done <- q.Dequeue() }()

	q.Close()

	select {
	case r := <-done:
		if r != nil {
			t.Errorf("dequeue on closed empty queue = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not unblock after close")
	}

	if q.Enqueue(record(Tier0Lifecycle, "late")) {
		t.Error("enqueue succeeded after close")
	}
}
