package agent

import (
	"fmt"
	"strings"
)

// dangerousKeywords are SQL verbs the agent must never execute. Matched
// as whole lowercase words anywhere in the statement, so a column named
// "updated_at" passes but "UPDATE users" does not.
var dangerousKeywords = map[string]struct{}{
	"drop":     {},
	"delete":   {},
	"update":   {},
	"insert":   {},
	"truncate": {},
	"alter":    {},
	"create":   {},
	"grant":    {},
	"revoke":   {},
}

// CleanSQL strips markdown fences and surrounding noise from a model
// response so only the statement remains.
func CleanSQL(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[:i]
		}
	}

	return strings.TrimSpace(s)
}

// ValidateSQL checks a generated statement before execution. Only
// read-only statements starting with SELECT or WITH pass.
func ValidateSQL(sql string) error {
	if sql == "" {
		return fmt.Errorf("empty query")
	}

	lower := strings.ToLower(sql)
	first, _, _ := strings.Cut(strings.TrimSpace(lower), " ")
	if first != "select" && first != "with" {
		return fmt.Errorf("only SELECT queries are allowed, got %q", first)
	}

	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if _, bad := dangerousKeywords[word]; bad {
			return fmt.Errorf("query contains forbidden keyword %q", word)
		}
	}

	return nil
}
