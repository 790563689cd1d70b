// Package tracker keeps a time-ordered log of query fingerprint occurrences
// and detects N+1 access patterns: clusters of one fingerprint repeated
// abnormally often inside a short span, indicating missing batching.
//
// The detector is heuristic. It trades precision for recall, and its output
// is a "suspected pattern" with an advisory confidence score, never a hard
// assertion.
package tracker

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultThreshold is the per-window occurrence count that makes a
	// fingerprint an N+1 candidate.
	DefaultThreshold = 10
	// DefaultWindow is the retention window for the occurrence log.
	DefaultWindow = 60 * time.Minute
	// detectionSpan is the number of consecutive log entries examined per
	// sliding-window step.
	detectionSpan = 50
	// maxEntries bounds the log regardless of window; the ring drops the
	// oldest entries under sustained load.
	maxEntries = 10000
)

// occurrence is one recorded fingerprint sighting.
type occurrence struct {
	fingerprint string
	at          time.Time
}

// Detection describes one suspected N+1 pattern.
type Detection struct {
	Fingerprint     string        `json:"fingerprint"`
	OccurrenceCount int           `json:"occurrence_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AffectedTables  []string      `json:"affected_tables"`
	Solution        string        `json:"suggested_solution"`
	// Confidence is in [0, 1] and grows with occurrence count above the
	// threshold. Callers must treat it as advisory.
	Confidence float64 `json:"confidence_score"`
}

// MetricsLookup resolves a fingerprint to its sample text and accumulated
// duration. Detections for fingerprints the lookup does not know are still
// reported, with empty table and duration data.
type MetricsLookup func(fingerprint string) (sampleText string, totalDuration time.Duration, ok bool)

// TableExtractor maps sample text to the table names it references.
type TableExtractor func(sampleText string) []string

// Tracker is a bounded, time-pruned ring of fingerprint occurrences.
type Tracker struct {
	mu        sync.Mutex
	entries   []occurrence // ring buffer
	head      int          // index of oldest entry
	count     int
	threshold int
	window    time.Duration
}

// New creates a Tracker. Non-positive arguments fall back to defaults.
func New(threshold int, window time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		entries:   make([]occurrence, maxEntries),
		threshold: threshold,
		window:    window,
	}
}

// Record appends a fingerprint occurrence and prunes entries that have
// fallen out of the analysis window.
func (t *Tracker) Record(fingerprint string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == len(t.entries) {
		// Ring full: overwrite the oldest entry.
		t.head = (t.head + 1) % len(t.entries)
		t.count--
	}
	t.entries[(t.head+t.count)%len(t.entries)] = occurrence{fingerprint: fingerprint, at: at}
	t.count++

	cutoff := at.Add(-t.window)
	for t.count > 0 && t.entries[t.head].at.Before(cutoff) {
		t.head = (t.head + 1) % len(t.entries)
		t.count--
	}
}

// Len returns the number of retained occurrences.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Detect slides a fixed-size window across the occurrence log and reports
// fingerprints that repeat at or above the threshold within any window.
// Per-window counts for the same fingerprint are averaged so a single burst
// is reported once rather than once per overlapping window.
func (t *Tracker) Detect(lookup MetricsLookup, tables TableExtractor) []Detection {
	log := t.snapshot()
	if len(log) == 0 {
		return nil
	}

	span := detectionSpan
	if span > len(log) {
		span = len(log)
	}

	// candidateSums accumulates per-window counts of fingerprints that
	// crossed the threshold, windowHits how many windows flagged them.
	candidateSums := make(map[string]int)
	windowHits := make(map[string]int)

	counts := make(map[string]int, span)
	for i := 0; i+span <= len(log); i++ {
		if i == 0 {
			for _, occ := range log[:span] {
				counts[occ.fingerprint]++
			}
		} else {
			// Slide: drop the departing entry, add the arriving one.
			out := log[i-1].fingerprint
			counts[out]--
			if counts[out] == 0 {
				delete(counts, out)
			}
			counts[log[i+span-1].fingerprint]++
		}

		for fp, c := range counts {
			if c >= t.threshold {
				candidateSums[fp] += c
				windowHits[fp]++
			}
		}
	}

	detections := make([]Detection, 0, len(candidateSums))
	for fp, sum := range candidateSums {
		avg := float64(sum) / float64(windowHits[fp])
		d := Detection{
			Fingerprint:     fp,
			OccurrenceCount: int(avg),
			Confidence:      confidence(avg, t.threshold),
		}
		if lookup != nil {
			if sample, total, ok := lookup(fp); ok {
				d.TotalDuration = total
				if tables != nil {
					d.AffectedTables = tables(sample)
				}
			}
		}
		d.Solution = suggestSolution(d.AffectedTables)
		detections = append(detections, d)
	}
	return detections
}

// snapshot copies the live ring contents in arrival order.
func (t *Tracker) snapshot() []occurrence {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]occurrence, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.entries[(t.head+i)%len(t.entries)]
	}
	return out
}

// confidence maps the average per-window count to [0, 1]. It is zero at the
// threshold and saturates at five times the threshold; the exact scaling is
// tunable but must stay monotonic and bounded.
func confidence(avgCount float64, threshold int) float64 {
	c := (avgCount - float64(threshold)) / (4 * float64(threshold))
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// suggestSolution templates batching advice from the affected tables.
func suggestSolution(tables []string) string {
	switch len(tables) {
	case 0:
		return "batch the repeated lookups into a single bulk fetch or enable eager loading"
	case 1:
		return fmt.Sprintf("replace repeated single-row lookups with one bulk query: SELECT ... FROM %s WHERE id IN (...)", tables[0])
	default:
		return fmt.Sprintf("combine the repeated queries into a single JOIN across %s", joinNames(tables))
	}
}

func joinNames(tables []string) string {
	out := tables[0]
	for _, t := range tables[1:] {
		out += ", " + t
	}
	return out
}
