package breaker

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowCapacity is the default MetricWindow size (W in spec terms).
const DefaultWindowCapacity = 1000

// Window is a bounded, mutex-guarded FIFO of Records. Many caller threads
// call Record concurrently; Snapshot is called by a single decision loop at
// a time but is safe for concurrent use regardless.
//
// On overflow the oldest record is evicted silently; there is no
// caller-visible error path for a full window.
type Window struct {
	mu       sync.Mutex
	buf      []Record
	capacity int
	head     int // index of the oldest element
	size     int
}

// NewWindow creates a Window with the given capacity. A capacity <= 0 falls
// back to DefaultWindowCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		buf:      make([]Record, capacity),
		capacity: capacity,
	}
}

// Record appends r, evicting the oldest entry if the window is full.
func (w *Window) Record(r Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := (w.head + w.size) % w.capacity
	if w.size < w.capacity {
		w.buf[idx] = r
		w.size++
	} else {
		w.buf[w.head] = r
		w.head = (w.head + 1) % w.capacity
	}
}

// Len returns the current number of records held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Capacity returns the configured maximum size W.
func (w *Window) Capacity() int {
	return w.capacity
}

// Snapshot copies the current contents of the window and computes the
// derived aggregates over that point-in-time copy. The copy makes every
// Snapshot aggregate a pure function of its contents, immune to concurrent
// writers landing mid-computation.
func (w *Window) Snapshot() *Snapshot {
	w.mu.Lock()
	records := make([]Record, w.size)
	for i := 0; i < w.size; i++ {
		records[i] = w.buf[(w.head+i)%w.capacity]
	}
	w.mu.Unlock()

	return newSnapshot(records)
}

// Snapshot is a read-only, point-in-time view over a copy of the window's
// contents, exposing the derived scalars spec.md §3 names.
type Snapshot struct {
	records []Record

	p95Latency  time.Duration
	errorRate   float64
	successRate float64
	concurrency float64
	systemLoad  float64
	timeOfDay   float64
}

func newSnapshot(records []Record) *Snapshot {
	s := &Snapshot{records: records, timeOfDay: timeOfDay(time.Now())}
	n := len(records)
	if n == 0 {
		return s
	}

	latencies := make([]time.Duration, n)
	failures := 0
	inFlightSum := 0
	loadSum := 0.0
	for i, r := range records {
		latencies[i] = r.Latency
		if !r.Success {
			failures++
		}
		inFlightSum += r.InFlight
		loadSum += r.SystemLoad
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	s.p95Latency = percentile(latencies, 0.95)
	s.errorRate = float64(failures) / float64(n)
	s.successRate = 1 - s.errorRate
	s.concurrency = float64(inFlightSum) / float64(n)
	s.systemLoad = loadSum / float64(n)
	return s
}

// percentile returns the ceil(p*N)-th order statistic (1-indexed) of a
// slice already sorted ascending. Empty input yields 0.
func percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(ceil(p * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func ceil(v float64) float64 {
	i := float64(int64(v))
	if v > i {
		return i + 1
	}
	return i
}

func timeOfDay(t time.Time) float64 {
	return float64(t.Hour()) / 24.0
}

// Records exposes the underlying copy, e.g. so the feature engineer can walk
// raw values the aggregates don't capture (not used by the aggregate
// accessors below, which are pure functions of the copy).
func (s *Snapshot) Records() []Record { return s.records }

// Empty reports whether the snapshot was taken over a window with no
// records.
func (s *Snapshot) Empty() bool { return len(s.records) == 0 }

// P95Latency is the 95th percentile latency; 0 for an empty snapshot.
func (s *Snapshot) P95Latency() time.Duration { return s.p95Latency }

// ErrorRate is failures/total; 0 for an empty snapshot.
func (s *Snapshot) ErrorRate() float64 { return s.errorRate }

// SuccessRate is 1 - ErrorRate.
func (s *Snapshot) SuccessRate() float64 { return s.successRate }

// Concurrency is the mean in-flight count; 0 for an empty snapshot.
func (s *Snapshot) Concurrency() float64 { return s.concurrency }

// SystemLoad is the mean system load; 0 for an empty snapshot.
func (s *Snapshot) SystemLoad() float64 { return s.systemLoad }

// TimeOfDay is the current hour divided by 24, evaluated when the snapshot
// was taken.
func (s *Snapshot) TimeOfDay() float64 { return s.timeOfDay }

// EmptySnapshot returns the canonical zero-value snapshot used as a
// fallback when the window itself cannot be read.
func EmptySnapshot() *Snapshot {
	return newSnapshot(nil)
}

// NewAggregateSnapshot rebuilds a Snapshot directly from previously
// persisted aggregate fields, for a metric sink's warm-start path
// (spec.md §6). The underlying per-call records are not recoverable from a
// persisted aggregate, so Records returns nil for a snapshot built this way.
func NewAggregateSnapshot(p95Latency time.Duration, errorRate, successRate, concurrency, systemLoad, timeOfDayFraction float64) *Snapshot {
	return &Snapshot{
		p95Latency:  p95Latency,
		errorRate:   errorRate,
		successRate: successRate,
		concurrency: concurrency,
		systemLoad:  systemLoad,
		timeOfDay:   timeOfDayFraction,
	}
}
