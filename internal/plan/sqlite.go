package plan

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteExplainer fetches execution plans from SQLite using
// EXPLAIN QUERY PLAN, which returns text rows rather than JSON.
type SQLiteExplainer struct {
	db *sql.DB
}

// NewSQLiteExplainer creates a SQLite explainer over the given connection.
func NewSQLiteExplainer(db *sql.DB) *SQLiteExplainer {
	return &SQLiteExplainer{db: db}
}

// Explain requests the plan for a query. SQLite has no EXPLAIN ANALYZE;
// the analyze flag is ignored and only estimated structure is returned.
func (se *SQLiteExplainer) Explain(ctx context.Context, query string, _ bool) (*ExplainResult, error) {
	rows, err := se.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute EXPLAIN QUERY PLAN: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// EXPLAIN QUERY PLAN returns 4 columns: id, parent, notused, detail.
	var details []string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan EXPLAIN output: %w", err)
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading EXPLAIN output: %w", err)
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("%w: no plan rows", ErrMalformedPlan)
	}

	return &ExplainResult{
		Root:      convertSQLitePlan(details),
		RawOutput: strings.Join(details, "\n"),
		Database:  "sqlite",
	}, nil
}

// convertSQLitePlan synthesizes a Node tree from EXPLAIN QUERY PLAN detail
// lines. Typical lines:
//
//	"SCAN users"                                     full table scan
//	"SEARCH users USING INDEX idx_email (email=?)"   index scan
//	"SEARCH users USING INTEGER PRIMARY KEY (rowid=?)"
//	"USE TEMP B-TREE FOR ORDER BY"                   sort
//
// A single scan line becomes the root; multiple scan lines are joined under
// a synthetic Nested Loop node, which matches how SQLite executes joins.
func convertSQLitePlan(details []string) *Node {
	var scans []Node
	var hasSort bool

	for _, line := range details {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.Contains(upper, "USE TEMP B-TREE"):
			hasSort = true
		case strings.HasPrefix(upper, "SEARCH "):
			scans = append(scans, sqliteSearchNode(line, upper))
		case strings.HasPrefix(upper, "SCAN ") && !strings.Contains(upper, "USING"):
			scans = append(scans, Node{
				NodeType:     "Seq Scan",
				RelationName: sqliteRelation(line),
			})
		case strings.HasPrefix(upper, "SCAN "):
			// "SCAN t USING COVERING INDEX i" is still an index access.
			scans = append(scans, sqliteSearchNode(line, upper))
		}
	}

	var root *Node
	switch len(scans) {
	case 0:
		root = &Node{NodeType: "Result"}
	case 1:
		root = &scans[0]
	default:
		root = &Node{NodeType: "Nested Loop", JoinType: "Inner", Plans: scans}
	}

	if hasSort {
		root = &Node{NodeType: "Sort", SortMethod: "temp b-tree", Plans: []Node{*root}}
	}
	return root
}

// sqliteSearchNode builds an index scan node from a SEARCH/SCAN ... USING line.
func sqliteSearchNode(line, upper string) Node {
	n := Node{
		NodeType:     "Index Scan",
		RelationName: sqliteRelation(line),
	}
	switch {
	case strings.Contains(upper, "USING COVERING INDEX"):
		n.NodeType = "Index Only Scan"
		n.IndexName = wordAfter(line, "USING COVERING INDEX ")
	case strings.Contains(upper, "USING INDEX"):
		n.IndexName = wordAfter(line, "USING INDEX ")
	case strings.Contains(upper, "USING INTEGER PRIMARY KEY"):
		n.IndexName = "PRIMARY KEY"
	case strings.Contains(upper, "USING AUTOMATIC"):
		n.IndexName = "AUTOMATIC INDEX"
	}
	return n
}

// sqliteRelation extracts the table name following SCAN or SEARCH.
func sqliteRelation(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return ""
	}
	// Skip an optional "TABLE" keyword used by older SQLite versions.
	name := fields[1]
	if strings.EqualFold(name, "TABLE") && len(fields) > 2 {
		name = fields[2]
	}
	return name
}

// wordAfter extracts the first word following marker (case-insensitive),
// stopping at whitespace or an opening parenthesis.
func wordAfter(line, marker string) string {
	idx := strings.Index(strings.ToUpper(line), strings.ToUpper(marker))
	if idx == -1 {
		return ""
	}
	rest := strings.TrimSpace(line[idx+len(marker):])
	for i, ch := range rest {
		if ch == ' ' || ch == '(' {
			return rest[:i]
		}
	}
	return rest
}
