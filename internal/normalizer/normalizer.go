// Package normalizer turns raw SQL text into a stable fingerprint that is
// independent of literal parameter values. Two executions of the same query
// shape ("SELECT * FROM users WHERE id = 1" vs "... id = 2") normalize to the
// same text and therefore the same fingerprint.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// FingerprintLength is the number of hex characters kept from the hash.
const FingerprintLength = 12

// Strategy indicates which normalization path produced a Result.
type Strategy int

const (
	// StrategyTokenized means the structural token scan succeeded.
	StrategyTokenized Strategy = iota
	// StrategyFallback means tokenization failed and the regex-based
	// fallback produced the normalized text instead.
	StrategyFallback
)

// String returns the strategy name for logging.
func (s Strategy) String() string {
	if s == StrategyFallback {
		return "fallback"
	}
	return "tokenized"
}

// Result holds the outcome of normalizing one SQL statement.
type Result struct {
	// Normalized is the parameter-free form of the query.
	Normalized string
	// Fingerprint is a short stable identifier derived from Normalized.
	Fingerprint string
	// Strategy records which normalization path was taken.
	Strategy Strategy
}

// Normalize converts raw SQL into its normalized form and fingerprint.
// It never fails: if the token scanner rejects the input, a regex-based
// fallback is applied instead.
func Normalize(raw string) Result {
	normalized, ok := tokenizeNormalize(raw)
	strategy := StrategyTokenized
	if !ok {
		normalized = fallbackNormalize(raw)
		strategy = StrategyFallback
	}
	return Result{
		Normalized:  normalized,
		Fingerprint: Fingerprint(normalized),
		Strategy:    strategy,
	}
}

// Fingerprint hashes normalized text into a short fixed-length identifier.
// Truncation trades collision resistance for storage economy; at 12 hex
// characters collisions are negligible for realistic workloads.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// TruncateQuery shortens query text for display. Report entries must never
// carry full raw text because literal values may contain sensitive data.
func TruncateQuery(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// tokenKind classifies a scanned token.
type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenKeyword
	tokenLiteral
	tokenOperator
)

// token is a single lexical unit of a SQL statement.
type token struct {
	kind tokenKind
	text string
}

// tokenizeNormalize scans the SQL into tokens and re-joins them with literal
// values replaced by a placeholder. Returns false when the input cannot be
// scanned cleanly (unterminated string/comment, unexpected byte).
func tokenizeNormalize(raw string) (string, bool) {
	tokens, ok := scanTokens(raw)
	if !ok || len(tokens) == 0 {
		return "", false
	}

	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.text
	}
	return strings.Join(parts, " "), true
}

// scanTokens splits raw SQL into tokens. Literal tokens carry "?" as text,
// keywords are upper-cased, identifiers lower-cased.
func scanTokens(raw string) ([]token, bool) {
	var tokens []token
	i := 0
	n := len(raw)

	for i < n {
		c := raw[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '-' && i+1 < n && raw[i+1] == '-':
			// Line comment, skipped entirely.
			for i < n && raw[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && raw[i+1] == '*':
			end := strings.Index(raw[i+2:], "*/")
			if end == -1 {
				return nil, false
			}
			i += 2 + end + 2

		case c == '\'':
			j, ok := scanStringLiteral(raw, i)
			if !ok {
				return nil, false
			}
			tokens = append(tokens, token{kind: tokenLiteral, text: "?"})
			i = j

		case c == '"':
			// Quoted identifier, kept verbatim apart from case folding.
			j := i + 1
			for j < n && raw[j] != '"' {
				j++
			}
			if j >= n {
				return nil, false
			}
			tokens = append(tokens, token{kind: tokenIdent, text: strings.ToLower(raw[i : j+1])})
			i = j + 1

		case c >= '0' && c <= '9', c == '.' && i+1 < n && raw[i+1] >= '0' && raw[i+1] <= '9':
			i = scanNumber(raw, i)
			tokens = append(tokens, token{kind: tokenLiteral, text: "?"})

		case c == '$' && i+1 < n && raw[i+1] >= '0' && raw[i+1] <= '9':
			// Positional bind parameter ($1, $2, ...).
			j := i + 1
			for j < n && raw[j] >= '0' && raw[j] <= '9' {
				j++
			}
			tokens = append(tokens, token{kind: tokenLiteral, text: "?"})
			i = j

		case c == '?':
			tokens = append(tokens, token{kind: tokenLiteral, text: "?"})
			i++

		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentPart(raw[j]) {
				j++
			}
			word := raw[i:j]
			if isKeyword(word) {
				tokens = append(tokens, token{kind: tokenKeyword, text: strings.ToUpper(word)})
			} else {
				tokens = append(tokens, token{kind: tokenIdent, text: strings.ToLower(word)})
			}
			i = j

		case isOperatorByte(c):
			j := i + 1
			// Greedily take two-byte operators (>=, <=, <>, !=, ||, ::).
			if j < n && isTwoByteOperator(raw[i:j+1]) {
				j++
			}
			tokens = append(tokens, token{kind: tokenOperator, text: raw[i:j]})
			i = j

		default:
			return nil, false
		}
	}

	return tokens, true
}

// scanStringLiteral scans a single-quoted literal starting at i, handling
// doubled-quote escapes. Returns the index past the closing quote.
func scanStringLiteral(raw string, i int) (int, bool) {
	n := len(raw)
	j := i + 1
	for j < n {
		if raw[j] == '\'' {
			if j+1 < n && raw[j+1] == '\'' {
				j += 2
				continue
			}
			return j + 1, true
		}
		j++
	}
	return 0, false
}

// scanNumber scans an integer, decimal, or exponent literal starting at i.
func scanNumber(raw string, i int) int {
	n := len(raw)
	j := i
	for j < n && (raw[j] >= '0' && raw[j] <= '9' || raw[j] == '.') {
		j++
	}
	if j < n && (raw[j] == 'e' || raw[j] == 'E') {
		k := j + 1
		if k < n && (raw[k] == '+' || raw[k] == '-') {
			k++
		}
		if k < n && raw[k] >= '0' && raw[k] <= '9' {
			for k < n && raw[k] >= '0' && raw[k] <= '9' {
				k++
			}
			j = k
		}
	}
	return j
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '$'
}

func isOperatorByte(c byte) bool {
	switch c {
	case '=', '<', '>', '!', '+', '-', '*', '/', '%', '(', ')', ',', ';', '.', ':', '|', '&', '~', '^', '[', ']', '@', '#':
		return true
	}
	return false
}

func isTwoByteOperator(s string) bool {
	switch s {
	case ">=", "<=", "<>", "!=", "||", "::", "->":
		return true
	}
	return false
}

// sqlKeywords covers the keywords that matter for shape comparison. Unlisted
// words are treated as identifiers and lower-cased, which is harmless for
// fingerprint stability.
var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "and": {}, "or": {}, "not": {},
	"insert": {}, "into": {}, "values": {}, "update": {}, "set": {},
	"delete": {}, "join": {}, "inner": {}, "left": {}, "right": {},
	"full": {}, "outer": {}, "cross": {}, "on": {}, "using": {},
	"group": {}, "order": {}, "by": {}, "having": {}, "limit": {},
	"offset": {}, "distinct": {}, "as": {}, "in": {}, "between": {},
	"like": {}, "ilike": {}, "is": {}, "null": {}, "asc": {}, "desc": {},
	"union": {}, "all": {}, "exists": {}, "case": {}, "when": {},
	"then": {}, "else": {}, "end": {}, "with": {}, "returning": {},
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {},
	"true": {}, "false": {},
}

func isKeyword(word string) bool {
	_, ok := sqlKeywords[strings.ToLower(word)]
	return ok
}

var (
	fallbackStringRe = regexp.MustCompile(`'(?:[^']|'')*'`)
	fallbackNumberRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	fallbackParamRe  = regexp.MustCompile(`\$\d+`)
)

// fallbackNormalize is the regex-based normalization path. It must never
// fail: replace literals with a placeholder, collapse whitespace, upper-case.
func fallbackNormalize(raw string) string {
	s := fallbackStringRe.ReplaceAllString(raw, "?")
	s = fallbackParamRe.ReplaceAllString(s, "?")
	s = fallbackNumberRe.ReplaceAllString(s, "?")
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToUpper(s)
}
