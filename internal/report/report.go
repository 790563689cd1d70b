// Package report assembles the engine's accumulated state into a single
// structured performance report: ranked slow/inefficient/hot query lists,
// suspected N+1 patterns, and statistics-driven global recommendations.
package report

import (
	"fmt"
	"time"

	"github.com/coregx/queryscope/internal/metrics"
	"github.com/coregx/queryscope/internal/normalizer"
	"github.com/coregx/queryscope/internal/plan"
	"github.com/coregx/queryscope/internal/tracker"
)

const (
	// PreviewLimit caps query text in report entries. Truncation is
	// mandatory: full statements can leak sensitive literal values.
	PreviewLimit = 100

	// DefaultTopN caps each ranked list.
	DefaultTopN = 10

	// Global recommendation ratios, relative to tracked fingerprints.
	slowQueryRatio  = 0.10
	seqScanRatio    = 0.30
	nestedLoopRatio = 0.20
)

// Summary holds the aggregate counts of a report.
type Summary struct {
	TotalObservations  uint64    `json:"total_observations"`
	UniqueFingerprints int       `json:"unique_fingerprints"`
	SlowQueryCount     int       `json:"slow_query_count"`
	NPlusOneCount      int       `json:"n_plus_one_count"`
	PlansCached        int       `json:"plans_cached"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// QueryEntry is one ranked query in a report list.
type QueryEntry struct {
	Fingerprint      string   `json:"fingerprint"`
	QueryPreview     string   `json:"query_preview"`
	ExecutionCount   int64    `json:"execution_count"`
	AvgDurationMS    float64  `json:"avg_duration_ms"`
	MaxDurationMS    float64  `json:"max_duration_ms"`
	TotalDurationMS  float64  `json:"total_duration_ms"`
	RowsReturned     int64    `json:"rows_returned"`
	EfficiencyRatio  float64  `json:"efficiency_ratio"`
	PerformanceScore float64  `json:"performance_score"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// NPlusOnePattern is one suspected N+1 pattern in a report.
type NPlusOnePattern struct {
	Fingerprint       string   `json:"fingerprint"`
	QueryPreview      string   `json:"query_preview"`
	OccurrenceCount   int      `json:"occurrence_count"`
	TotalDurationMS   float64  `json:"total_duration_ms"`
	AffectedTables    []string `json:"affected_tables"`
	SuggestedSolution string   `json:"suggested_solution"`
	ConfidenceScore   float64  `json:"confidence_score"`
}

// Report is the engine's complete analysis output, serializable to JSON.
type Report struct {
	AnalysisSummary             Summary           `json:"analysis_summary"`
	SlowQueries                 []QueryEntry      `json:"slow_queries"`
	NPlusOnePatterns            []NPlusOnePattern `json:"n_plus_one_patterns"`
	InefficientQueries          []QueryEntry      `json:"inefficient_queries"`
	MostFrequentQueries         []QueryEntry      `json:"most_frequent_queries"`
	OptimizationRecommendations []string          `json:"optimization_recommendations"`
	// Error is set when report assembly itself partially failed; the
	// remaining fields then hold a best-effort partial report.
	Error string `json:"error,omitempty"`
}

// Config controls report assembly.
type Config struct {
	// SlowQueryThreshold marks a fingerprint as slow when its average
	// duration meets or exceeds it.
	SlowQueryThreshold time.Duration
	// TopN caps each ranked list; non-positive falls back to DefaultTopN.
	TopN int
}

// Sources carries the engine state a report is assembled from.
type Sources struct {
	Store        *metrics.Store
	Plans        []*plan.ExecutionPlan
	Detections   []tracker.Detection
	Observations uint64
	Now          time.Time
}

// Build assembles a report. It never panics out: an unexpected failure is
// recovered into the Error field of a best-effort partial report.
func Build(cfg Config, src Sources) (r *Report) {
	r = &Report{}
	defer func() {
		if rec := recover(); rec != nil {
			r.Error = fmt.Sprintf("report assembly failed: %v", rec)
		}
	}()

	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}

	planByFP := make(map[string]*plan.ExecutionPlan, len(src.Plans))
	for _, p := range src.Plans {
		planByFP[p.Fingerprint] = p
	}

	tracked := src.Store.Len()

	// The slow count spans every tracked fingerprint; TopN only caps the
	// displayed list.
	slowCount := 0
	for _, m := range src.Store.Snapshot() {
		if m.AvgDuration >= cfg.SlowQueryThreshold {
			slowCount++
		}
	}

	// Slow queries: avg duration at or above threshold, slowest first.
	for _, m := range src.Store.TopByAvgDuration(cfg.TopN) {
		if m.AvgDuration < cfg.SlowQueryThreshold {
			continue
		}
		r.SlowQueries = append(r.SlowQueries, entryFrom(m, planByFP))
	}

	// Inefficient queries: efficiency ratio below 0.1, worst first.
	for _, m := range src.Store.TopByLowEfficiency(cfg.TopN) {
		if m.EfficiencyRatio() >= 0.1 {
			continue
		}
		r.InefficientQueries = append(r.InefficientQueries, entryFrom(m, planByFP))
	}

	for _, m := range src.Store.TopByFrequency(cfg.TopN) {
		r.MostFrequentQueries = append(r.MostFrequentQueries, entryFrom(m, planByFP))
	}

	for _, d := range src.Detections {
		preview := ""
		if m, ok := src.Store.Get(d.Fingerprint); ok {
			preview = normalizer.TruncateQuery(m.SampleText, PreviewLimit)
		}
		r.NPlusOnePatterns = append(r.NPlusOnePatterns, NPlusOnePattern{
			Fingerprint:       d.Fingerprint,
			QueryPreview:      preview,
			OccurrenceCount:   d.OccurrenceCount,
			TotalDurationMS:   durationMS(d.TotalDuration),
			AffectedTables:    d.AffectedTables,
			SuggestedSolution: d.Solution,
			ConfidenceScore:   d.Confidence,
		})
	}

	r.OptimizationRecommendations = globalRecommendations(
		tracked, slowCount, len(r.NPlusOnePatterns), src.Plans)

	r.AnalysisSummary = Summary{
		TotalObservations:  src.Observations,
		UniqueFingerprints: tracked,
		SlowQueryCount:     slowCount,
		NPlusOneCount:      len(r.NPlusOnePatterns),
		PlansCached:        len(src.Plans),
		GeneratedAt:        src.Now,
	}
	return r
}

// entryFrom converts store metrics into a report entry, attaching the
// cached plan's recommendations when one exists.
func entryFrom(m metrics.QueryMetrics, plans map[string]*plan.ExecutionPlan) QueryEntry {
	e := QueryEntry{
		Fingerprint:      m.Fingerprint,
		QueryPreview:     normalizer.TruncateQuery(m.SampleText, PreviewLimit),
		ExecutionCount:   m.ExecutionCount,
		AvgDurationMS:    durationMS(m.AvgDuration),
		MaxDurationMS:    durationMS(m.MaxDuration),
		TotalDurationMS:  durationMS(m.TotalDuration),
		RowsReturned:     m.RowsReturned,
		EfficiencyRatio:  m.EfficiencyRatio(),
		PerformanceScore: m.PerformanceScore(),
	}
	if p, ok := plans[m.Fingerprint]; ok {
		e.Recommendations = p.Recommendations
	}
	return e
}

// globalRecommendations derives advice from aggregate ratios across all
// tracked fingerprints rather than from any single query.
func globalRecommendations(tracked, slow, nPlusOne int, plans []*plan.ExecutionPlan) []string {
	var recs []string
	if tracked == 0 {
		return recs
	}

	if float64(slow) > float64(tracked)*slowQueryRatio {
		recs = append(recs, fmt.Sprintf(
			"%d of %d tracked queries are slow - review your indexing strategy and query structure",
			slow, tracked))
	}

	if nPlusOne > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d suspected N+1 query patterns - implement bulk loading or eager fetching",
			nPlusOne))
	}

	seqScans := 0
	nestedLoops := 0
	for _, p := range plans {
		seqScans += len(p.TableScans)
		for _, j := range p.Joins {
			if j.NodeKind == "Nested Loop" {
				nestedLoops++
			}
		}
	}

	if float64(seqScans) > float64(tracked)*seqScanRatio {
		recs = append(recs, fmt.Sprintf(
			"%d sequential scans across analyzed plans - add selective indexes on frequently filtered columns",
			seqScans))
	}
	if float64(nestedLoops) > float64(tracked)*nestedLoopRatio {
		recs = append(recs, fmt.Sprintf(
			"%d nested loop joins across analyzed plans - verify join columns are indexed",
			nestedLoops))
	}
	return recs
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
