package nl2sql

import (
	"strings"

	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/schema"
)

// forbiddenKeywords trips on DML/DDL anywhere in a statement, including
// inside subqueries of a SELECT wrapper. Word-boundary matching keeps
// column names like execution_time from tripping on EXEC.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "merge", "exec", "execute", "copy", "call", "do",
}

type GuardConfig struct {
	MaxStatementLength int
}

// Guard statically validates a candidate before execution. Posture is deny
// by default: every check must pass, and a rejected candidate is never
// patched into an acceptable one.
type Guard struct {
	maxStatementLength int
}

func NewGuard(cfg GuardConfig) *Guard {
	maxLen := cfg.MaxStatementLength
	if maxLen <= 0 {
		maxLen = 2000
	}
	return &Guard{maxStatementLength: maxLen}
}

// Check runs every policy check and enumerates all failures, not just the
// first, so rejections can be logged precisely.
func (g *Guard) Check(candidate Candidate, schemaCtx schema.Context) Verdict {
	var violations []Violation

	text := strings.TrimSpace(candidate.RawText)
	if text == "" {
		verdict := Verdict{Violations: []Violation{ViolationEmpty}}
		recordViolations(verdict.Violations)
		return verdict
	}

	if len(text) > g.maxStatementLength {
		violations = append(violations, ViolationTooLong)
	}

	masked := strings.ToLower(maskLiterals(text))

	if candidate.Kind != StatementSelect || !strings.HasPrefix(masked, "select") {
		violations = append(violations, ViolationNotSelect)
	}

	for _, keyword := range forbiddenKeywords {
		if containsWord(masked, keyword) {
			violations = append(violations, ViolationForbiddenKeyword)
			break
		}
	}

	if strings.Contains(masked, "--") || strings.Contains(masked, "/*") || strings.Contains(masked, "*/") {
		violations = append(violations, ViolationComment)
	}

	if hasExtraStatements(masked) {
		violations = append(violations, ViolationMultipleStatements)
	}

	if unknownTableReferenced(masked, schemaCtx) {
		violations = append(violations, ViolationUnknownTable)
	}

	if len(violations) > 0 {
		recordViolations(violations)
		return Verdict{Violations: violations}
	}

	return Verdict{Accepted: true, SanitizedText: sanitize(text)}
}

// hasExtraStatements reports a statement separator that is not the final
// trailing semicolon. Literal contents are already masked out.
func hasExtraStatements(masked string) bool {
	trimmed := strings.TrimRight(masked, " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, ";")
	return strings.ContainsRune(trimmed, ';')
}

// fromListStoppers are the keywords that end a FROM list at paren depth
// zero. Join keywords are included because JOIN operands get their own
// validation turn in the token walk.
var fromListStoppers = map[string]bool{
	"where": true, "group": true, "order": true, "limit": true,
	"having": true, "union": true, "intersect": true, "except": true,
	"join": true, "inner": true, "left": true, "right": true,
	"full": true, "cross": true, "natural": true, "on": true,
	"using": true, "window": true, "offset": true, "fetch": true,
	"for": true,
}

// unknownTableReferenced checks every base-table identifier in each FROM
// list and every JOIN operand against the schema allow-list. The FROM walk
// covers the whole comma-separated list, not just the first entry. Derived
// tables and their aliases are skipped; anything else unknown (catalog
// tables included) is a violation.
func unknownTableReferenced(masked string, schemaCtx schema.Context) bool {
	allowed := map[string]bool{}
	for _, name := range schemaCtx.TableNames() {
		allowed[strings.ToLower(name)] = true
	}

	tokens := sqlTokens(masked)
	for i, token := range tokens {
		switch token {
		case "from":
			if unknownInFromList(tokens[i+1:], allowed) {
				return true
			}
		case "join":
			if i+1 >= len(tokens) {
				continue
			}
			next := tokens[i+1]
			// JOIN ( subquery ) and JOIN LATERAL are validated when the
			// walk reaches the subquery's own FROM.
			if next == "(" || next == "select" || next == "lateral" {
				continue
			}
			if !allowed[next] {
				return true
			}
		}
	}
	return false
}

// unknownInFromList walks the tokens after a FROM keyword. Each item in the
// comma-separated list must open with an allow-listed table name or a
// parenthesised derived table; aliases and column lists inside parens are
// skipped until the next comma. The walk ends at the list's clause boundary.
func unknownInFromList(tokens []string, allowed map[string]bool) bool {
	depth := 0
	expectTable := true
	for _, token := range tokens {
		switch token {
		case "(":
			depth++
			expectTable = false
			continue
		case ")":
			if depth == 0 {
				return false
			}
			depth--
			continue
		}
		if depth > 0 {
			continue
		}
		switch token {
		case ",":
			expectTable = true
			continue
		case ";":
			return false
		}
		if fromListStoppers[token] {
			return false
		}
		if !expectTable {
			continue
		}
		if token == "select" || token == "lateral" || token == "only" {
			continue
		}
		if !allowed[token] {
			return true
		}
		expectTable = false
	}
	return false
}

func sanitize(text string) string {
	sanitized := strings.TrimSpace(text)
	sanitized = strings.TrimSuffix(sanitized, ";")
	return strings.TrimSpace(sanitized)
}

func recordViolations(violations []Violation) {
	for _, violation := range violations {
		observability.ObserveGuardRejection(string(violation))
	}
}
