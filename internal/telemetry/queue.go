package telemetry

import (
	"sync"
	"sync/atomic"
)

// BoundedQueue is a thread-safe bounded queue with tier-based
// backpressure. When full it sheds tier 2 records first, then tier 1.
// Tier 0 records are never dropped and may push the queue past capacity.
type BoundedQueue struct {
	capacity int
	records  []*RunRecord
	mu       sync.Mutex
	notEmpty *sync.Cond

	totalEnqueued atomic.Int64
	totalDequeued atomic.Int64
	droppedTier2  atomic.Int64
	droppedTier1  atomic.Int64

	closed atomic.Bool
}

// NewBoundedQueue creates a queue with the given capacity.
func NewBoundedQueue(capacity int) *BoundedQueue {
	if capacity <= 0 {
		capacity = 10000
	}
	q := &BoundedQueue{
		capacity: capacity,
		records:  make([]*RunRecord, 0, capacity),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a record, shedding lower tiers when full. Returns false
// when the record was dropped.
func (q *BoundedQueue) Enqueue(record *RunRecord) bool {
	if q.closed.Load() {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed.Load() {
		return false
	}

	if record.Tier == Tier0Lifecycle {
		q.appendLocked(record)
		return true
	}

	if len(q.records) >= q.capacity {
		if q.shedLocked(Tier2Metric, &q.droppedTier2) {
			q.appendLocked(record)
			return true
		}

		if record.Tier == Tier2Metric {
			q.droppedTier2.Add(1)
			return false
		}

		if q.shedLocked(Tier1Error, &q.droppedTier1) {
			q.appendLocked(record)
			return true
		}
		q.droppedTier1.Add(1)
		return false
	}

	q.appendLocked(record)
	return true
}

func (q *BoundedQueue) appendLocked(record *RunRecord) {
	q.records = append(q.records, record)
	q.totalEnqueued.Add(1)
	q.notEmpty.Signal()
}

// shedLocked drops the oldest record of the given tier. Must be called
// with mu held.
func (q *BoundedQueue) shedLocked(tier RecordTier, counter *atomic.Int64) bool {
	for i, r := range q.records {
		if r.Tier == tier {
			q.records = append(q.records[:i], q.records[i+1:]...)
			counter.Add(1)
			return true
		}
	}
	return false
}

// Dequeue removes and returns the next record, blocking until one is
// available or the queue is closed. Returns nil when closed and empty.
func (q *BoundedQueue) Dequeue() *RunRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.records) == 0 && !q.closed.Load() {
		q.notEmpty.Wait()
	}

	if len(q.records) == 0 {
		return nil
	}

	record := q.records[0]
	q.records = q.records[1:]
	q.totalDequeued.Add(1)
	return record
}

// TryDequeueBatch dequeues up to n records without blocking. Returns
// nil when the queue is empty.
func (q *BoundedQueue) TryDequeueBatch(n int) []*RunRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return nil
	}

	count := n
	if count > len(q.records) {
		count = len(q.records)
	}

	batch := make([]*RunRecord, count)
	copy(batch, q.records[:count])
	q.records = q.records[count:]
	q.totalDequeued.Add(int64(count))
	return batch
}

// Len returns the current queue depth.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Stats returns current queue statistics.
func (q *BoundedQueue) Stats() QueueStats {
	q.mu.Lock()
	depth := len(q.records)
	q.mu.Unlock()

	return QueueStats{
		Depth:         depth,
		Capacity:      q.capacity,
		TotalEnqueued: q.totalEnqueued.Load(),
		TotalDequeued: q.totalDequeued.Load(),
		DroppedTier2:  q.droppedTier2.Load(),
		DroppedTier1:  q.droppedTier1.Load(),
	}
}

// Close wakes blocked consumers. After Close, Enqueue returns false and
// Dequeue returns nil once drained.
func (q *BoundedQueue) Close() {
	q.closed.Store(true)
	q.notEmpty.Broadcast()
}
