package plan

import (
	"errors"
	"testing"
)

const pgJoinExplainJSON = `[
  {
    "Plan": {
      "Node Type": "Hash Join",
      "Join Type": "Inner",
      "Hash Cond": "(o.user_id = u.id)",
      "Startup Cost": 10.5,
      "Total Cost": 150.5,
      "Plan Rows": 100,
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Relation Name": "orders",
          "Alias": "o",
          "Filter": "(status = 'open'::text)",
          "Total Cost": 100.0,
          "Plan Rows": 5000
        },
        {
          "Node Type": "Index Scan",
          "Relation Name": "users",
          "Alias": "u",
          "Index Name": "users_pkey",
          "Index Cond": "(id = o.user_id)",
          "Total Cost": 8.3,
          "Plan Rows": 1
        }
      ]
    },
    "Planning Time": 0.2
  }
]`

const pgAnalyzeExplainJSON = `[
  {
    "Plan": {
      "Node Type": "Seq Scan",
      "Relation Name": "listings",
      "Total Cost": 431.0,
      "Plan Rows": 10000,
      "Actual Rows": 9876,
      "Actual Loops": 1,
      "Actual Total Time": 12.3
    },
    "Planning Time": 0.1,
    "Execution Time": 14.7
  }
]`

func TestParsePostgresExplain(t *testing.T) {
	res, err := parsePostgresExplain(pgJoinExplainJSON)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if res.Database != "postgres" {
		t.Errorf("database = %q", res.Database)
	}
	root := res.Root
	if root.NodeType != "Hash Join" || root.JoinType != "Inner" {
		t.Errorf("root = %+v", root)
	}
	if root.HashCond != "(o.user_id = u.id)" {
		t.Errorf("hash cond = %q", root.HashCond)
	}
	if len(root.Plans) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Plans))
	}

	scan := root.Plans[0]
	if scan.NodeType != "Seq Scan" || scan.RelationName != "orders" || scan.PlanRows != 5000 {
		t.Errorf("first child = %+v", scan)
	}
	idx := root.Plans[1]
	if idx.IndexName != "users_pkey" || idx.IndexCond != "(id = o.user_id)" {
		t.Errorf("second child = %+v", idx)
	}
}

func TestParsePostgresExplain_AnalyzeOutput(t *testing.T) {
	res, err := parsePostgresExplain(pgAnalyzeExplainJSON)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if res.ExecutionTimeMS != 14.7 {
		t.Errorf("execution time = %v, want 14.7", res.ExecutionTimeMS)
	}
	if res.Root.ActualRows != 9876 || res.Root.ActualLoops != 1 {
		t.Errorf("actuals = %d/%d", res.Root.ActualRows, res.Root.ActualLoops)
	}
}

func TestParsePostgresExplain_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not json", "[]", "{}"} {
		_, err := parsePostgresExplain(raw)
		if !errors.Is(err, ErrMalformedPlan) {
			t.Errorf("parse(%q) error = %v, want ErrMalformedPlan", raw, err)
		}
	}
}
