package report

import (
	"fmt"
	"io"
	"strings"
)

// Render writes a human-readable rendition of the report. The JSON form is
// the stable interface; this output is for terminals and log files.
func Render(w io.Writer, r *Report) error {
	var b strings.Builder

	b.WriteString("Query Performance Report\n")
	b.WriteString("========================\n")
	fmt.Fprintf(&b, "generated:           %s\n", r.AnalysisSummary.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "observations:        %d\n", r.AnalysisSummary.TotalObservations)
	fmt.Fprintf(&b, "unique fingerprints: %d\n", r.AnalysisSummary.UniqueFingerprints)
	fmt.Fprintf(&b, "plans cached:        %d\n", r.AnalysisSummary.PlansCached)
	if r.Error != "" {
		fmt.Fprintf(&b, "error:               %s\n", r.Error)
	}

	if len(r.SlowQueries) > 0 {
		fmt.Fprintf(&b, "\nSlow Queries (%d)\n", len(r.SlowQueries))
		b.WriteString("----------------\n")
		for _, e := range r.SlowQueries {
			writeEntry(&b, e)
		}
	}

	if len(r.NPlusOnePatterns) > 0 {
		fmt.Fprintf(&b, "\nSuspected N+1 Patterns (%d)\n", len(r.NPlusOnePatterns))
		b.WriteString("--------------------------\n")
		for _, p := range r.NPlusOnePatterns {
			fmt.Fprintf(&b, "  [%s] %s\n", p.Fingerprint, p.QueryPreview)
			fmt.Fprintf(&b, "    occurrences=%d total=%.1fms confidence=%.2f\n",
				p.OccurrenceCount, p.TotalDurationMS, p.ConfidenceScore)
			if len(p.AffectedTables) > 0 {
				fmt.Fprintf(&b, "    tables: %s\n", strings.Join(p.AffectedTables, ", "))
			}
			fmt.Fprintf(&b, "    suggestion: %s\n", p.SuggestedSolution)
		}
	}

	if len(r.InefficientQueries) > 0 {
		fmt.Fprintf(&b, "\nInefficient Queries (%d)\n", len(r.InefficientQueries))
		b.WriteString("-----------------------\n")
		for _, e := range r.InefficientQueries {
			writeEntry(&b, e)
		}
	}

	if len(r.MostFrequentQueries) > 0 {
		fmt.Fprintf(&b, "\nMost Frequent Queries (%d)\n", len(r.MostFrequentQueries))
		b.WriteString("-------------------------\n")
		for _, e := range r.MostFrequentQueries {
			writeEntry(&b, e)
		}
	}

	if len(r.OptimizationRecommendations) > 0 {
		b.WriteString("\nRecommendations\n")
		b.WriteString("---------------\n")
		for _, rec := range r.OptimizationRecommendations {
			fmt.Fprintf(&b, "  * %s\n", rec)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeEntry(b *strings.Builder, e QueryEntry) {
	fmt.Fprintf(b, "  [%s] %s\n", e.Fingerprint, e.QueryPreview)
	fmt.Fprintf(b, "    count=%d avg=%.1fms max=%.1fms efficiency=%.2f score=%.0f\n",
		e.ExecutionCount, e.AvgDurationMS, e.MaxDurationMS, e.EfficiencyRatio, e.PerformanceScore)
	for _, rec := range e.Recommendations {
		fmt.Fprintf(b, "    - %s\n", rec)
	}
}
