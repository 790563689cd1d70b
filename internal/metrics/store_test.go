package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(d time.Duration, rows int64, at time.Time) Observation {
	return Observation{Duration: d, HasDuration: true, Rows: rows, HasRows: true, At: at}
}

func TestStore_RecordAggregates(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Record("fp1", "SELECT * FROM users WHERE id = ?", obs(100*time.Millisecond, 1, now))
	s.Record("fp1", "SELECT * FROM users WHERE id = ?", obs(300*time.Millisecond, 2, now.Add(time.Second)))
	m := s.Record("fp1", "SELECT * FROM users WHERE id = ?", obs(200*time.Millisecond, 3, now.Add(2*time.Second)))

	assert.Equal(t, int64(3), m.ExecutionCount)
	assert.Equal(t, 600*time.Millisecond, m.TotalDuration)
	assert.Equal(t, 200*time.Millisecond, m.AvgDuration)
	assert.Equal(t, 100*time.Millisecond, m.MinDuration)
	assert.Equal(t, 300*time.Millisecond, m.MaxDuration)
	assert.Equal(t, int64(6), m.RowsReturned)
	assert.Equal(t, now, m.FirstSeen)
	assert.Equal(t, now.Add(2*time.Second), m.LastSeen)
}

func TestStore_UntimedObservations(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Record("fp1", "q", Observation{At: now})
	m := s.Record("fp1", "q", obs(100*time.Millisecond, 0, now))

	// Only the timed observation contributes to the average.
	assert.Equal(t, int64(2), m.ExecutionCount)
	assert.Equal(t, 100*time.Millisecond, m.AvgDuration)
}

func TestStore_EvictsOldestLastSeen(t *testing.T) {
	s := NewStore(2)
	t0 := time.Now()

	s.Record("fp1", "q1", obs(time.Millisecond, 0, t0))
	s.Record("fp2", "q2", obs(time.Millisecond, 0, t0.Add(time.Second)))
	// fp1 becomes the most recently seen.
	s.Record("fp1", "q1", obs(time.Millisecond, 0, t0.Add(2*time.Second)))
	// Third fingerprint forces eviction of fp2, the oldest last seen.
	s.Record("fp3", "q3", obs(time.Millisecond, 0, t0.Add(3*time.Second)))

	_, ok := s.Get("fp2")
	assert.False(t, ok, "fp2 should have been evicted")
	_, ok = s.Get("fp1")
	assert.True(t, ok)
	_, ok = s.Get("fp3")
	assert.True(t, ok)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(1), s.Stats().Evictions)
}

func TestQueryMetrics_EfficiencyRatio(t *testing.T) {
	tests := []struct {
		name     string
		examined int64
		returned int64
		want     float64
	}{
		{"selective", 1000, 10, 0.01},
		{"perfect", 10, 10, 1},
		{"returned exceeds examined clamps to one", 5, 50, 1},
		{"zero examined treated as one", 0, 0, 0},
		{"zero examined with rows clamps to one", 0, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := QueryMetrics{RowsExamined: tt.examined, RowsReturned: tt.returned}
			assert.InDelta(t, tt.want, m.EfficiencyRatio(), 1e-9)
		})
	}
}

func TestQueryMetrics_PerformanceScore(t *testing.T) {
	fast := QueryMetrics{AvgDuration: time.Millisecond, RowsExamined: 10, RowsReturned: 10}
	slow := QueryMetrics{AvgDuration: 2 * time.Second, RowsExamined: 10, RowsReturned: 10}
	wasteful := QueryMetrics{AvgDuration: time.Millisecond, RowsExamined: 10000, RowsReturned: 1}

	assert.Greater(t, fast.PerformanceScore(), slow.PerformanceScore())
	assert.Greater(t, fast.PerformanceScore(), wasteful.PerformanceScore())
	assert.GreaterOrEqual(t, slow.PerformanceScore(), 0.0)
	assert.LessOrEqual(t, fast.PerformanceScore(), 100.0)
}

func TestStore_ApplyPlanOnce(t *testing.T) {
	s := NewStore(10)
	s.Record("fp1", "q", obs(time.Millisecond, 5, time.Now()))

	s.ApplyPlan("fp1", 1000, 2, 1)
	// Second application is ignored.
	s.ApplyPlan("fp1", 9999, 9, 9)

	m, ok := s.Get("fp1")
	require.True(t, ok)
	assert.Equal(t, int64(1000), m.RowsExamined)
	assert.Equal(t, 2, m.TableScanCount)
	assert.Equal(t, 1, m.IndexScanCount)

	// Unknown fingerprints are a no-op.
	s.ApplyPlan("missing", 1, 1, 1)
}

func TestStore_TopByAvgDuration(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Record("slow", "q1", obs(500*time.Millisecond, 0, now))
	s.Record("fast", "q2", obs(10*time.Millisecond, 0, now))
	s.Record("mid", "q3", obs(100*time.Millisecond, 0, now))
	// No timed observation; must not appear.
	s.Record("untimed", "q4", Observation{At: now})

	top := s.TopByAvgDuration(2)
	require.Len(t, top, 2)
	assert.Equal(t, "slow", top[0].Fingerprint)
	assert.Equal(t, "mid", top[1].Fingerprint)
}

func TestStore_TopByLowEfficiency(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	s.Record("wasteful", "q1", obs(time.Millisecond, 10, now))
	s.ApplyPlan("wasteful", 100000, 1, 0)
	s.Record("efficient", "q2", obs(time.Millisecond, 10, now))
	s.ApplyPlan("efficient", 10, 0, 1)
	// No plan applied; ratio is not meaningful, so it is excluded.
	s.Record("unanalyzed", "q3", obs(time.Millisecond, 10, now))

	top := s.TopByLowEfficiency(10)
	require.Len(t, top, 2)
	assert.Equal(t, "wasteful", top[0].Fingerprint)
}

func TestStore_TopByFrequency(t *testing.T) {
	s := NewStore(10)
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.Record("hot", "q1", obs(time.Millisecond, 0, now))
	}
	s.Record("cold", "q2", obs(time.Millisecond, 0, now))

	top := s.TopByFrequency(1)
	require.Len(t, top, 1)
	assert.Equal(t, "hot", top[0].Fingerprint)
	assert.Equal(t, int64(5), top[0].ExecutionCount)
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s := NewStore(100)
	now := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				fp := fmt.Sprintf("fp%d", i%10)
				s.Record(fp, "q", obs(time.Millisecond, 1, now))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
	assert.Equal(t, uint64(800), s.Stats().Observations)

	var total int64
	for _, m := range s.Snapshot() {
		total += m.ExecutionCount
	}
	assert.Equal(t, int64(800), total, "no observations may be lost")
}
