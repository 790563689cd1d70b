// Package metrics maintains running performance statistics per distinct
// query fingerprint. The store is safe for concurrent use and bounded: once
// the configured capacity is exceeded, the fingerprint with the oldest
// last-seen time is evicted.
package metrics

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCapacity is the default maximum number of tracked fingerprints.
	DefaultCapacity = 100

	// sampleTextLimit bounds the stored sample text. Reports truncate
	// further for display; the store never keeps full statements.
	sampleTextLimit = 200
)

// QueryMetrics holds the running statistics for one query fingerprint.
type QueryMetrics struct {
	Fingerprint string
	SampleText  string

	ExecutionCount int64
	TotalDuration  time.Duration
	AvgDuration    time.Duration
	MinDuration    time.Duration
	MaxDuration    time.Duration
	timedCount     int64

	RowsExamined int64
	RowsReturned int64

	TableScanCount int
	IndexScanCount int
	planApplied    bool

	FirstSeen time.Time
	LastSeen  time.Time
}

// EfficiencyRatio is the fraction of examined rows actually returned,
// clamped to [0, 1]. RowsExamined of zero is treated as one so the ratio is
// always defined.
func (m *QueryMetrics) EfficiencyRatio() float64 {
	examined := m.RowsExamined
	if examined < 1 {
		examined = 1
	}
	ratio := float64(m.RowsReturned) / float64(examined)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// PerformanceScore combines a duration penalty with the efficiency ratio
// into a 0-100 score. Higher is better. The exact weights are heuristic;
// the score is monotonic: slower queries and lower efficiency never raise it.
func (m *QueryMetrics) PerformanceScore() float64 {
	avgMS := float64(m.AvgDuration) / float64(time.Millisecond)
	penalty := avgMS / 20
	if penalty > 70 {
		penalty = 70
	}
	score := 100 - penalty - (1-m.EfficiencyRatio())*30
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Observation is a single executed-statement report.
type Observation struct {
	Duration    time.Duration
	HasDuration bool
	Rows        int64
	HasRows     bool
	At          time.Time
}

// Store tracks QueryMetrics per fingerprint with oldest-last-seen eviction.
type Store struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*list.Element
	// recency keeps most recently seen fingerprints at the front so the
	// eviction victim is always at the back.
	recency *list.List

	observations atomic.Uint64
	evictions    atomic.Uint64
}

// NewStore creates a Store with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		recency:  list.New(),
	}
}

// Record applies one observation to the fingerprint's metrics, creating the
// record on first sight. It returns a snapshot copy of the updated metrics.
func (s *Store) Record(fingerprint, sampleText string, obs Observation) QueryMetrics {
	s.observations.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[fingerprint]
	if !exists {
		if s.recency.Len() >= s.capacity {
			s.evictOldest()
		}
		m := &QueryMetrics{
			Fingerprint: fingerprint,
			SampleText:  clipSample(sampleText),
			FirstSeen:   obs.At,
		}
		elem = s.recency.PushFront(m)
		s.items[fingerprint] = elem
	} else {
		s.recency.MoveToFront(elem)
	}

	m := elem.Value.(*QueryMetrics)
	m.ExecutionCount++
	m.LastSeen = obs.At

	if obs.HasDuration {
		m.timedCount++
		m.TotalDuration += obs.Duration
		m.AvgDuration = m.TotalDuration / time.Duration(m.timedCount)
		if m.timedCount == 1 || obs.Duration < m.MinDuration {
			m.MinDuration = obs.Duration
		}
		if obs.Duration > m.MaxDuration {
			m.MaxDuration = obs.Duration
		}
	}
	if obs.HasRows {
		m.RowsReturned += obs.Rows
	}

	return *m
}

// ApplyPlan backfills plan-derived counters for a fingerprint. The store
// does not compute these itself; they are applied at most once, when a
// cached execution plan becomes available.
func (s *Store) ApplyPlan(fingerprint string, rowsExamined int64, tableScans, indexScans int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[fingerprint]
	if !ok {
		return
	}
	m := elem.Value.(*QueryMetrics)
	if m.planApplied {
		return
	}
	m.planApplied = true
	m.RowsExamined = rowsExamined
	m.TableScanCount = tableScans
	m.IndexScanCount = indexScans
}

// Get returns a snapshot of the metrics for a fingerprint.
func (s *Store) Get(fingerprint string) (QueryMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.items[fingerprint]
	if !ok {
		return QueryMetrics{}, false
	}
	return *elem.Value.(*QueryMetrics), true
}

// Len returns the number of tracked fingerprints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recency.Len()
}

// Snapshot returns copies of all tracked metrics in unspecified order.
func (s *Store) Snapshot() []QueryMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]QueryMetrics, 0, s.recency.Len())
	for elem := s.recency.Front(); elem != nil; elem = elem.Next() {
		out = append(out, *elem.Value.(*QueryMetrics))
	}
	return out
}

// TopByAvgDuration returns up to n metrics sorted by average duration,
// slowest first. Fingerprints without any timed observation are skipped.
func (s *Store) TopByAvgDuration(n int) []QueryMetrics {
	all := s.Snapshot()
	filtered := all[:0]
	for _, m := range all {
		if m.timedCount > 0 {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].AvgDuration > filtered[j].AvgDuration
	})
	return clip(filtered, n)
}

// TopByLowEfficiency returns up to n metrics sorted by efficiency ratio,
// least efficient first. Only fingerprints with plan-derived row counts are
// considered; without them the ratio is not meaningful.
func (s *Store) TopByLowEfficiency(n int) []QueryMetrics {
	all := s.Snapshot()
	filtered := all[:0]
	for _, m := range all {
		if m.planApplied {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].EfficiencyRatio() < filtered[j].EfficiencyRatio()
	})
	return clip(filtered, n)
}

// TopByFrequency returns up to n metrics sorted by execution count,
// most frequent first.
func (s *Store) TopByFrequency(n int) []QueryMetrics {
	all := s.Snapshot()
	sort.Slice(all, func(i, j int) bool {
		return all[i].ExecutionCount > all[j].ExecutionCount
	})
	return clip(all, n)
}

// Stats holds store counters.
type Stats struct {
	Size         int
	Capacity     int
	Observations uint64
	Evictions    uint64
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Size:         s.Len(),
		Capacity:     s.capacity,
		Observations: s.observations.Load(),
		Evictions:    s.evictions.Load(),
	}
}

// evictOldest removes the fingerprint with the oldest last-seen time.
// Must be called with the lock held.
func (s *Store) evictOldest() {
	elem := s.recency.Back()
	if elem == nil {
		return
	}
	s.recency.Remove(elem)
	delete(s.items, elem.Value.(*QueryMetrics).Fingerprint)
	s.evictions.Add(1)
}

func clipSample(s string) string {
	if len(s) > sampleTextLimit {
		return s[:sampleTextLimit]
	}
	return s
}

func clip(ms []QueryMetrics, n int) []QueryMetrics {
	if n > 0 && len(ms) > n {
		return ms[:n]
	}
	return ms
}
