package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_DetectsBurst(t *testing.T) {
	tr := New(10, time.Hour)
	now := time.Now()

	for i := 0; i < 20; i++ {
		tr.Record("fpA", now.Add(time.Duration(i)*time.Second))
	}

	detections := tr.Detect(nil, nil)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, "fpA", d.Fingerprint)
	assert.GreaterOrEqual(t, d.OccurrenceCount, 10)
	assert.Greater(t, d.Confidence, 0.0)
	// 20 occurrences against threshold 10: (20-10)/(4*10).
	assert.InDelta(t, 0.25, d.Confidence, 1e-9)
}

func TestTracker_BelowThresholdNoDetection(t *testing.T) {
	tr := New(10, time.Hour)
	now := time.Now()

	for i := 0; i < 9; i++ {
		tr.Record("fpA", now.Add(time.Duration(i)*time.Second))
	}

	assert.Empty(t, tr.Detect(nil, nil))
}

func TestTracker_MixedTrafficFlagsOnlyRepeats(t *testing.T) {
	tr := New(10, time.Hour)
	now := time.Now()

	// Every third record is the hot fingerprint, the rest are one-offs.
	for i := 0; i < 50; i++ {
		fp := fmt.Sprintf("unique-%d", i)
		if i%3 == 0 {
			fp = "hot"
		}
		tr.Record(fp, now.Add(time.Duration(i)*time.Second))
	}

	detections := tr.Detect(nil, nil)
	require.Len(t, detections, 1)
	assert.Equal(t, "hot", detections[0].Fingerprint)
}

func TestTracker_WindowPruning(t *testing.T) {
	tr := New(10, time.Minute)
	now := time.Now()

	for i := 0; i < 30; i++ {
		tr.Record("old", now.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, 30, tr.Len())

	// A record two hours later pushes everything else out of the window.
	tr.Record("new", now.Add(2*time.Hour))
	assert.Equal(t, 1, tr.Len())
	assert.Empty(t, tr.Detect(nil, nil))
}

func TestTracker_RingOverwrite(t *testing.T) {
	tr := New(10, time.Hour)
	now := time.Now()

	for i := 0; i < maxEntries+5; i++ {
		tr.Record("fp", now.Add(time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, maxEntries, tr.Len())
}

func TestTracker_DetectEnrichesFromLookup(t *testing.T) {
	tr := New(10, time.Hour)
	now := time.Now()

	for i := 0; i < 20; i++ {
		tr.Record("fpA", now.Add(time.Duration(i)*time.Second))
	}

	lookup := func(fp string) (string, time.Duration, bool) {
		if fp != "fpA" {
			return "", 0, false
		}
		return "SELECT * FROM properties WHERE id = ?", 800 * time.Millisecond, true
	}
	extract := func(sample string) []string { return []string{"properties"} }

	detections := tr.Detect(lookup, extract)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, []string{"properties"}, d.AffectedTables)
	assert.Equal(t, 800*time.Millisecond, d.TotalDuration)
	assert.Contains(t, d.Solution, "properties")
	assert.Contains(t, d.Solution, "IN (...)")
}

func TestSuggestSolution(t *testing.T) {
	assert.Contains(t, suggestSolution(nil), "eager loading")
	assert.Contains(t, suggestSolution([]string{"users"}), "FROM users WHERE id IN")

	multi := suggestSolution([]string{"orders", "users"})
	assert.Contains(t, multi, "JOIN")
	assert.Contains(t, multi, "orders, users")
}

func TestConfidence_MonotonicAndBounded(t *testing.T) {
	th := 10

	assert.Equal(t, 0.0, confidence(5, th), "below threshold clamps to zero")
	assert.Equal(t, 0.0, confidence(10, th))
	assert.InDelta(t, 0.5, confidence(30, th), 1e-9)
	assert.Equal(t, 1.0, confidence(50, th), "saturates at five times the threshold")
	assert.Equal(t, 1.0, confidence(500, th))

	prev := -1.0
	for avg := 0.0; avg <= 100; avg += 5 {
		c := confidence(avg, th)
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
}
