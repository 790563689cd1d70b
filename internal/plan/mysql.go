package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// MySQLExplainer fetches execution plans from MySQL using
// EXPLAIN FORMAT=JSON.
type MySQLExplainer struct {
	db *sql.DB
}

// NewMySQLExplainer creates a MySQL explainer over the given connection pool.
func NewMySQLExplainer(db *sql.DB) *MySQLExplainer {
	return &MySQLExplainer{db: db}
}

// Explain requests the plan for a query. MySQL's EXPLAIN ANALYZE (8.0.18+)
// returns a text tree rather than JSON, so actual run statistics are not
// recovered here; the analyze flag only switches the server-side mode.
func (me *MySQLExplainer) Explain(ctx context.Context, query string, _ bool) (*ExplainResult, error) {
	var rawJSON string
	if err := me.db.QueryRowContext(ctx, "EXPLAIN FORMAT=JSON "+query).Scan(&rawJSON); err != nil {
		return nil, fmt.Errorf("failed to execute EXPLAIN: %w", err)
	}

	res, err := parseMySQLExplain(rawJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXPLAIN output: %w", err)
	}
	res.RawOutput = rawJSON
	return res, nil
}

// mysqlExplainRoot represents the root of MySQL EXPLAIN FORMAT=JSON output.
type mysqlExplainRoot struct {
	QueryBlock mysqlQueryBlock `json:"query_block"`
}

// mysqlQueryBlock represents the query_block node.
type mysqlQueryBlock struct {
	CostInfo   mysqlCostInfo     `json:"cost_info"`
	Table      *mysqlTableAccess `json:"table"`
	NestedLoop []mysqlLoopEntry  `json:"nested_loop"`
	Ordering   *mysqlOrdering    `json:"ordering_operation"`
	Grouping   *mysqlGrouping    `json:"grouping_operation"`
}

type mysqlLoopEntry struct {
	Table *mysqlTableAccess `json:"table"`
}

// mysqlTableAccess represents a single table access.
type mysqlTableAccess struct {
	TableName           string        `json:"table_name"`
	AccessType          string        `json:"access_type"` // "ALL", "index", "range", "ref", "eq_ref", "const"
	Key                 string        `json:"key"`
	RowsExaminedPerScan int64         `json:"rows_examined_per_scan"`
	RowsProducedPerJoin int64         `json:"rows_produced_per_join"`
	AttachedCondition   string        `json:"attached_condition"`
	CostInfo            mysqlCostInfo `json:"cost_info"`
}

// mysqlOrdering represents ORDER BY operations.
type mysqlOrdering struct {
	UsingFilesort bool              `json:"using_filesort"`
	Table         *mysqlTableAccess `json:"table"`
	NestedLoop    []mysqlLoopEntry  `json:"nested_loop"`
}

// mysqlGrouping represents GROUP BY operations.
type mysqlGrouping struct {
	UsingTemporaryTable bool              `json:"using_temporary_table"`
	UsingFilesort       bool              `json:"using_filesort"`
	Table               *mysqlTableAccess `json:"table"`
	NestedLoop          []mysqlLoopEntry  `json:"nested_loop"`
}

// mysqlCostInfo represents cost estimates. MySQL encodes costs as strings.
type mysqlCostInfo struct {
	QueryCost string `json:"query_cost"`
	ReadCost  string `json:"read_cost"`
	SortCost  string `json:"sort_cost"`
}

// parseMySQLExplain parses MySQL EXPLAIN JSON output, synthesizing a Node
// tree in the unified vocabulary (ALL access becomes a Seq Scan node,
// nested_loop becomes a Nested Loop node, filesort becomes a Sort node).
func parseMySQLExplain(rawJSON string) (*ExplainResult, error) {
	var root mysqlExplainRoot
	if err := json.Unmarshal([]byte(rawJSON), &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	node := convertMySQLBlock(&root.QueryBlock)
	if node == nil {
		return nil, fmt.Errorf("%w: empty query block", ErrMalformedPlan)
	}
	node.TotalCost = parseCost(root.QueryBlock.CostInfo.QueryCost)

	return &ExplainResult{
		Root:     node,
		Database: "mysql",
	}, nil
}

// convertMySQLBlock maps a query block to the unified tree.
func convertMySQLBlock(qb *mysqlQueryBlock) *Node {
	if qb.Ordering != nil {
		return wrapSort(convertMySQLAccess(qb.Ordering.Table, qb.Ordering.NestedLoop), qb.Ordering.UsingFilesort)
	}
	if qb.Grouping != nil {
		child := convertMySQLAccess(qb.Grouping.Table, qb.Grouping.NestedLoop)
		agg := &Node{NodeType: "Aggregate"}
		if child != nil {
			agg.Plans = []Node{*child}
		}
		return wrapSort(agg, qb.Grouping.UsingFilesort)
	}
	return convertMySQLAccess(qb.Table, qb.NestedLoop)
}

// wrapSort wraps a node under a synthetic Sort node when filesort is used.
func wrapSort(child *Node, filesort bool) *Node {
	if child == nil || !filesort {
		return child
	}
	return &Node{
		NodeType:   "Sort",
		SortMethod: "filesort",
		Plans:      []Node{*child},
	}
}

// convertMySQLAccess maps table accesses to scan nodes; joins appear as a
// Nested Loop node over its table accesses (MySQL's only join strategy in
// the classic EXPLAIN output).
func convertMySQLAccess(table *mysqlTableAccess, loop []mysqlLoopEntry) *Node {
	if len(loop) > 0 {
		join := &Node{NodeType: "Nested Loop", JoinType: "Inner"}
		for _, entry := range loop {
			if scan := convertMySQLTable(entry.Table); scan != nil {
				if join.JoinFilter == "" && entry.Table.AttachedCondition != "" {
					join.JoinFilter = entry.Table.AttachedCondition
				}
				join.Plans = append(join.Plans, *scan)
			}
		}
		return join
	}
	return convertMySQLTable(table)
}

// convertMySQLTable maps a single table access to a scan node.
func convertMySQLTable(t *mysqlTableAccess) *Node {
	if t == nil {
		return nil
	}
	n := &Node{
		RelationName: t.TableName,
		Filter:       t.AttachedCondition,
		PlanRows:     t.RowsExaminedPerScan,
		TotalCost:    parseCost(t.CostInfo.ReadCost),
	}
	if t.AccessType == "ALL" {
		n.NodeType = "Seq Scan"
	} else {
		n.NodeType = "Index Scan"
		n.IndexName = t.Key
	}
	return n
}

// parseCost parses MySQL's string-encoded cost values, returning 0 on any
// parse failure.
func parseCost(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
