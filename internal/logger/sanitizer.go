package logger

import (
	"regexp"
	"strings"
)

// Sanitizer prepares query text for logging. Raw statements can embed
// literal values (emails, tokens, card numbers) so logged text always has
// its literals masked, and is truncated to keep log lines bounded.
type Sanitizer struct {
	sensitiveFields []string
	maskValue       string
	maxLength       int
	// Compiled patterns for faster matching
	patterns []*regexp.Regexp
}

// NewSanitizer creates a new sanitizer with the specified sensitive field names.
// If no fields are provided, a default set of common sensitive field names is used.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		// Default sensitive field names (common patterns)
		sensitiveFields = []string{
			"password", "passwd", "pwd",
			"token", "api_key", "apikey", "api_token",
			"secret", "auth", "authorization",
			"credit_card", "card_number", "cvv", "cvc",
			"ssn", "social_security",
			"private_key", "priv_key",
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(field) + `\b`)
		patterns = append(patterns, pattern)
	}

	return &Sanitizer{
		sensitiveFields: sensitiveFields,
		maskValue:       "***REDACTED***",
		maxLength:       100,
		patterns:        patterns,
	}
}

var (
	stringLiteralRe  = regexp.MustCompile(`'(?:[^']|'')*'`)
	numericLiteralRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// SafeQuery returns query text suitable for logging: literal values are
// replaced with placeholders, statements touching sensitive fields are
// masked entirely, and the result is whitespace-collapsed and truncated.
func (s *Sanitizer) SafeQuery(sql string) string {
	if s.containsSensitivePattern(strings.ToLower(sql)) {
		// Keep only the statement head so operators can still identify it.
		head := firstWord(sql)
		return head + " ... " + s.maskValue
	}

	safe := stringLiteralRe.ReplaceAllString(sql, "?")
	safe = numericLiteralRe.ReplaceAllString(safe, "?")
	safe = strings.Join(strings.Fields(safe), " ")

	if len(safe) > s.maxLength {
		return safe[:s.maxLength-3] + "..."
	}
	return safe
}

// containsSensitivePattern checks if SQL contains any sensitive field patterns.
func (s *Sanitizer) containsSensitivePattern(sql string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(sql) {
			return true
		}
	}
	return false
}

// firstWord extracts the leading keyword of a statement (SELECT, UPDATE, ...).
func firstWord(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
