package normalizer

import (
	"regexp"
	"sort"
	"strings"
)

// ExtractTables returns the table names referenced by a SQL statement,
// looking at identifiers that follow FROM, JOIN (and its variants), UPDATE,
// INSERT INTO, and DELETE FROM. Like Normalize it never fails: when the
// token scan rejects the input a regex pass is used instead. Names are
// returned sorted and deduplicated, schema qualifiers stripped.
func ExtractTables(raw string) []string {
	tokens, ok := scanTokens(raw)
	var names []string
	if ok {
		names = tablesFromTokens(tokens)
	} else {
		names = tablesFromRegex(raw)
	}
	return dedupeSorted(names)
}

// tablesFromTokens walks the token stream and collects the identifier
// following each table-introducing keyword.
func tablesFromTokens(tokens []token) []string {
	var names []string
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.kind != tokenKeyword {
			continue
		}
		switch t.text {
		case "FROM", "JOIN", "UPDATE", "INTO":
			if name, next := tableNameAt(tokens, i+1); name != "" {
				names = append(names, name)
				i = next - 1
			}
		}
	}
	return names
}

// tableNameAt reads a possibly schema-qualified identifier starting at index
// i. Returns the unqualified table name and the index after the identifier.
// Subqueries ("FROM (") and keyword follow-ups ("DELETE FROM" handled via
// FROM itself) yield an empty name.
func tableNameAt(tokens []token, i int) (string, int) {
	if i >= len(tokens) || tokens[i].kind != tokenIdent {
		return "", i
	}
	name := tokens[i].text
	i++
	// Consume schema qualifiers, keeping only the last segment.
	for i+1 < len(tokens) && tokens[i].text == "." && tokens[i+1].kind == tokenIdent {
		name = tokens[i+1].text
		i += 2
	}
	return strings.Trim(name, `"`), i
}

var tableRefRe = regexp.MustCompile(`(?i)\b(?:from|join|update|insert\s+into)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)

// tablesFromRegex is the fallback extraction path.
func tablesFromRegex(raw string) []string {
	var names []string
	for _, m := range tableRefRe.FindAllStringSubmatch(raw, -1) {
		name := strings.ToLower(m[1])
		if idx := strings.LastIndexByte(name, '.'); idx != -1 {
			name = name[idx+1:]
		}
		if name != "" && !isKeyword(name) {
			names = append(names, name)
		}
	}
	return names
}

func dedupeSorted(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
