// Package plan provides execution plan retrieval and interpretation using
// the database's EXPLAIN functionality. It supports PostgreSQL, MySQL, and
// SQLite behind a single Explainer interface and reduces every dialect's
// output to one Node tree, from which scan/join/sort structure and
// optimization recommendations are derived.
package plan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Predefined errors returned by plan analysis.
var (
	// ErrUnsupportedDriver is returned when no explainer exists for a driver.
	ErrUnsupportedDriver = errors.New("no explainer for driver")
	// ErrMalformedPlan is returned when EXPLAIN output cannot be parsed.
	ErrMalformedPlan = errors.New("malformed EXPLAIN output")
)

// Node is one node of an execution plan tree. Field names follow the
// PostgreSQL EXPLAIN vocabulary; the MySQL and SQLite explainers synthesize
// nodes using the same terms so the walk logic is dialect-agnostic.
type Node struct {
	NodeType     string
	RelationName string
	IndexName    string

	JoinType   string
	HashCond   string
	MergeCond  string
	JoinFilter string

	Filter    string
	IndexCond string

	SortKey    []string
	SortMethod string

	StartupCost float64
	TotalCost   float64
	PlanRows    int64

	ActualRows  int64
	ActualLoops int

	Plans []Node
}

// ExplainResult is the raw outcome of one EXPLAIN call.
type ExplainResult struct {
	Root            *Node
	ExecutionTimeMS float64 // populated by EXPLAIN ANALYZE only
	RawOutput       string
	Database        string
}

// Explainer fetches an execution plan from a database. This is the single
// narrow boundary to the host's database driver; the rest of the engine is
// driver-agnostic.
type Explainer interface {
	// Explain requests the execution plan for a query. When analyze is
	// true the query is executed to obtain actual run statistics, which
	// is strictly more expensive.
	Explain(ctx context.Context, query string, analyze bool) (*ExplainResult, error)
}

// NewExplainer creates the explainer matching a database/sql driver name.
func NewExplainer(db *sql.DB, driverName string) (Explainer, error) {
	switch driverName {
	case "postgres", "postgresql", "pgx":
		return NewPostgresExplainer(db), nil
	case "mysql":
		return NewMySQLExplainer(db), nil
	case "sqlite", "sqlite3":
		return NewSQLiteExplainer(db), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driverName)
	}
}

// IndexScan records one index access in a plan.
type IndexScan struct {
	Relation string `json:"relation"`
	Index    string `json:"index"`
}

// Join records one join node in a plan.
type Join struct {
	Type      string `json:"type"`
	Condition string `json:"condition,omitempty"`
	NodeKind  string `json:"node_kind"`
}

// Sort records one sort node in a plan.
type Sort struct {
	Keys   []string `json:"keys"`
	Method string   `json:"method,omitempty"`
	Cost   float64  `json:"cost"`
}

// ExecutionPlan is the interpreted form of one query's plan, flattened from
// the node tree. It is computed at most once per fingerprint and cached.
type ExecutionPlan struct {
	Fingerprint   string        `json:"fingerprint"`
	Database      string        `json:"database"`
	Root          *Node         `json:"-"`
	TotalCost     float64       `json:"total_cost"`
	ExecutionTime time.Duration `json:"execution_time"`
	RowsEstimated int64         `json:"rows_estimated"`
	RowsActual    int64         `json:"rows_actual"`

	NodeTypes  []string    `json:"node_types"`
	TableScans []string    `json:"table_scans"`
	IndexScans []IndexScan `json:"index_scans"`
	Joins      []Join      `json:"joins"`
	Sorts      []Sort      `json:"sorts"`

	Recommendations []string `json:"recommendations"`
}

// Interpret flattens an explain result into an ExecutionPlan and derives
// recommendations from its structure.
func Interpret(fingerprint string, res *ExplainResult) (*ExecutionPlan, error) {
	if res == nil || res.Root == nil {
		return nil, ErrMalformedPlan
	}

	p := &ExecutionPlan{
		Fingerprint:   fingerprint,
		Database:      res.Database,
		Root:          res.Root,
		TotalCost:     res.Root.TotalCost,
		RowsEstimated: res.Root.PlanRows,
		RowsActual:    actualRows(res.Root),
	}
	if res.ExecutionTimeMS > 0 {
		p.ExecutionTime = time.Duration(res.ExecutionTimeMS * float64(time.Millisecond))
	}

	walk(res.Root, p)
	p.Recommendations = recommend(p)
	return p, nil
}

// RowsExamined estimates the number of rows the plan touches: the sum of
// per-scan row counts, preferring actual counts when available. Used to
// backfill the metrics store's efficiency ratio.
func (p *ExecutionPlan) RowsExamined() int64 {
	var total int64
	var visit func(n *Node)
	visit = func(n *Node) {
		if isSeqScan(n) || isIndexScan(n) {
			rows := n.PlanRows
			if n.ActualRows > 0 {
				loops := n.ActualLoops
				if loops < 1 {
					loops = 1
				}
				rows = n.ActualRows * int64(loops)
			}
			total += rows
		}
		for i := range n.Plans {
			visit(&n.Plans[i])
		}
	}
	visit(p.Root)
	return total
}

// walk recursively accumulates the flattened node lists.
func walk(n *Node, p *ExecutionPlan) {
	p.NodeTypes = append(p.NodeTypes, n.NodeType)

	switch {
	case isSeqScan(n):
		if n.RelationName != "" {
			p.TableScans = append(p.TableScans, n.RelationName)
		}
	case isIndexScan(n):
		p.IndexScans = append(p.IndexScans, IndexScan{
			Relation: n.RelationName,
			Index:    n.IndexName,
		})
	case isJoin(n):
		p.Joins = append(p.Joins, Join{
			Type:      joinType(n),
			Condition: joinCondition(n),
			NodeKind:  n.NodeType,
		})
	case isSort(n):
		p.Sorts = append(p.Sorts, Sort{
			Keys:   n.SortKey,
			Method: n.SortMethod,
			Cost:   n.TotalCost,
		})
	}

	for i := range n.Plans {
		walk(&n.Plans[i], p)
	}
}

func isSeqScan(n *Node) bool {
	return n.NodeType == "Seq Scan" || n.NodeType == "Parallel Seq Scan"
}

func isIndexScan(n *Node) bool {
	return strings.Contains(n.NodeType, "Index Scan") ||
		strings.Contains(n.NodeType, "Index Only Scan") ||
		strings.Contains(n.NodeType, "Bitmap Index Scan")
}

func isJoin(n *Node) bool {
	switch n.NodeType {
	case "Nested Loop", "Hash Join", "Merge Join":
		return true
	}
	return false
}

func isSort(n *Node) bool {
	return n.NodeType == "Sort" || n.NodeType == "Incremental Sort"
}

// joinType prefers the declared join type (Inner, Left, ...) and falls back
// to the node kind.
func joinType(n *Node) string {
	if n.JoinType != "" {
		return n.JoinType
	}
	return n.NodeType
}

// joinCondition returns whichever join condition the node carries.
func joinCondition(n *Node) string {
	switch {
	case n.HashCond != "":
		return n.HashCond
	case n.MergeCond != "":
		return n.MergeCond
	case n.JoinFilter != "":
		return n.JoinFilter
	case n.Filter != "":
		return n.Filter
	}
	return ""
}

// actualRows accumulates actual row counts across the tree, scaled by loop
// count (a node executed N times reports per-loop rows).
func actualRows(root *Node) int64 {
	var total int64
	var visit func(n *Node)
	visit = func(n *Node) {
		if n.ActualRows > 0 {
			loops := n.ActualLoops
			if loops < 1 {
				loops = 1
			}
			total += n.ActualRows * int64(loops)
		}
		for i := range n.Plans {
			visit(&n.Plans[i])
		}
	}
	visit(root)
	return total
}
