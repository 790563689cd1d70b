package plan

import (
	"fmt"
	"strings"
)

// Cost thresholds for recommendation rules. Units are the database's own
// cost estimates (page fetches for PostgreSQL).
const (
	// HighSortCost flags a sort node as expensive.
	HighSortCost = 1000.0
	// HighTotalCost flags the whole plan as expensive.
	HighTotalCost = 10000.0
)

// recommend derives advisory strings from the structural facts of a plan.
// Rules apply independently; a plan may yield zero or many recommendations.
func recommend(p *ExecutionPlan) []string {
	var recs []string

	for _, table := range p.TableScans {
		recs = append(recs, fmt.Sprintf(
			"add index on %s - sequential scan detected", table))
	}

	for _, s := range p.Sorts {
		if s.Cost > HighSortCost {
			recs = append(recs, fmt.Sprintf(
				"expensive sort on %s - consider index or query rewrite",
				strings.Join(s.Keys, ", ")))
		}
	}

	for _, j := range p.Joins {
		if j.NodeKind == "Nested Loop" {
			recs = append(recs,
				"nested loop joins detected - verify indexes on join columns")
			break
		}
	}

	if p.TotalCost > HighTotalCost {
		recs = append(recs, fmt.Sprintf(
			"high total cost (%.1f) - consider restructuring", p.TotalCost))
	}

	for _, j := range p.Joins {
		if j.Condition == "" {
			recs = append(recs,
				"join without proper condition - check join logic")
			break
		}
	}

	return recs
}
