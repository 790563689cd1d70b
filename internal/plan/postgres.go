package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresExplainer fetches execution plans from PostgreSQL using
// EXPLAIN (FORMAT JSON).
type PostgresExplainer struct {
	db *sql.DB
}

// NewPostgresExplainer creates a PostgreSQL explainer over the given
// connection pool. The pool should be dedicated to plan analysis so the
// analyzer never competes with the application workload.
func NewPostgresExplainer(db *sql.DB) *PostgresExplainer {
	return &PostgresExplainer{db: db}
}

// Explain requests the plan for a query. With analyze set, the query is
// executed (EXPLAIN ANALYZE) to obtain actual row counts and timings.
func (pe *PostgresExplainer) Explain(ctx context.Context, query string, analyze bool) (*ExplainResult, error) {
	explainQuery := "EXPLAIN (FORMAT JSON) " + query
	if analyze {
		explainQuery = "EXPLAIN (ANALYZE, FORMAT JSON, BUFFERS) " + query
	}

	var rawJSON string
	if err := pe.db.QueryRowContext(ctx, explainQuery).Scan(&rawJSON); err != nil {
		return nil, fmt.Errorf("failed to execute EXPLAIN: %w", err)
	}

	res, err := parsePostgresExplain(rawJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXPLAIN output: %w", err)
	}
	res.RawOutput = rawJSON
	return res, nil
}

// postgresExplainRoot represents the root structure of PostgreSQL EXPLAIN
// JSON output.
type postgresExplainRoot struct {
	Plan          postgresPlanNode `json:"Plan"`
	PlanningTime  float64          `json:"Planning Time"`
	ExecutionTime float64          `json:"Execution Time"` // EXPLAIN ANALYZE only
}

// postgresPlanNode represents one plan node in PostgreSQL EXPLAIN output.
type postgresPlanNode struct {
	NodeType        string             `json:"Node Type"`
	RelationName    string             `json:"Relation Name"`
	Alias           string             `json:"Alias"`
	JoinType        string             `json:"Join Type"`
	IndexName       string             `json:"Index Name"`
	IndexCond       string             `json:"Index Cond"`
	HashCond        string             `json:"Hash Cond"`
	MergeCond       string             `json:"Merge Cond"`
	JoinFilter      string             `json:"Join Filter"`
	Filter          string             `json:"Filter"`
	SortKey         []string           `json:"Sort Key"`
	SortMethod      string             `json:"Sort Method"`
	StartupCost     float64            `json:"Startup Cost"`
	TotalCost       float64            `json:"Total Cost"`
	PlanRows        int64              `json:"Plan Rows"`
	ActualRows      int64              `json:"Actual Rows"`
	ActualLoops     int                `json:"Actual Loops"`
	ActualTotalTime float64            `json:"Actual Total Time"`
	Plans           []postgresPlanNode `json:"Plans"`
}

// parsePostgresExplain parses PostgreSQL EXPLAIN JSON output into an
// ExplainResult. PostgreSQL returns an array with a single element.
func parsePostgresExplain(rawJSON string) (*ExplainResult, error) {
	var explainArray []postgresExplainRoot
	if err := json.Unmarshal([]byte(rawJSON), &explainArray); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if len(explainArray) == 0 {
		return nil, fmt.Errorf("%w: empty EXPLAIN array", ErrMalformedPlan)
	}

	root := explainArray[0]
	return &ExplainResult{
		Root:            convertPostgresNode(&root.Plan),
		ExecutionTimeMS: root.ExecutionTime,
		Database:        "postgres",
	}, nil
}

// convertPostgresNode maps a decoded EXPLAIN node to the unified Node tree.
func convertPostgresNode(pn *postgresPlanNode) *Node {
	n := &Node{
		NodeType:     pn.NodeType,
		RelationName: pn.RelationName,
		IndexName:    pn.IndexName,
		JoinType:     pn.JoinType,
		HashCond:     pn.HashCond,
		MergeCond:    pn.MergeCond,
		JoinFilter:   pn.JoinFilter,
		Filter:       pn.Filter,
		IndexCond:    pn.IndexCond,
		SortKey:      pn.SortKey,
		SortMethod:   pn.SortMethod,
		StartupCost:  pn.StartupCost,
		TotalCost:    pn.TotalCost,
		PlanRows:     pn.PlanRows,
		ActualRows:   pn.ActualRows,
		ActualLoops:  pn.ActualLoops,
	}
	for i := range pn.Plans {
		n.Plans = append(n.Plans, *convertPostgresNode(&pn.Plans[i]))
	}
	return n
}
