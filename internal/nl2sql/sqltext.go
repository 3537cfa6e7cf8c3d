package nl2sql

import "strings"

// maskLiterals blanks the contents of single-quoted string literals while
// preserving offsets, so keyword and separator scans cannot be fooled by
// quoted text. Doubled quotes inside a literal are part of the literal.
// Dollar-quoted text is not masked; its body is scanned raw, which can only
// add violations, never hide them.
func maskLiterals(text string) string {
	out := []byte(text)
	inLiteral := false
	for i := 0; i < len(out); i++ {
		ch := out[i]
		if !inLiteral {
			if ch == '\'' {
				inLiteral = true
			}
			continue
		}
		if ch == '\'' {
			if i+1 < len(out) && out[i+1] == '\'' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				continue
			}
			inLiteral = false
			continue
		}
		out[i] = ' '
	}
	return string(out)
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// containsWord reports whether word occurs in text with word boundaries on
// both sides. Both arguments must already be lower-cased.
func containsWord(text, word string) bool {
	return indexWord(text, word) >= 0
}

func indexWord(text, word string) int {
	if word == "" {
		return -1
	}
	for from := 0; ; {
		idx := strings.Index(text[from:], word)
		if idx < 0 {
			return -1
		}
		idx += from
		before := idx == 0 || !isWordChar(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return idx
		}
		from = idx + 1
		if from >= len(text) {
			return -1
		}
	}
}

// sqlTokens splits masked SQL text into lower-cased word tokens plus the
// structural punctuation the table allow-list walk needs: commas, parens and
// statement separators. All other punctuation is dropped.
func sqlTokens(masked string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	for i := 0; i < len(masked); i++ {
		ch := masked[i]
		if isWordChar(ch) {
			current.WriteByte(ch)
			continue
		}
		flush()
		switch ch {
		case ',', '(', ')', ';':
			tokens = append(tokens, string(ch))
		}
	}
	flush()
	return tokens
}

// stripFences unwraps markdown code fences. If the text contains a fenced
// block anywhere, only the first block's body is returned.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := trimmed[start+3:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		head := strings.TrimSpace(body[:newline])
		// A language tag like "sql" sits on the fence line, not in the body.
		if head == "" || len(head) <= 10 && !strings.ContainsAny(head, " \t") {
			body = body[newline+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

var statementKeywords = []string{
	"select", "insert", "update", "delete", "drop", "create", "alter",
	"truncate", "grant", "revoke", "merge", "with", "copy", "call",
}

// extractStatement pulls a single SQL statement out of model output that may
// contain prose or fencing. It returns an empty string when nothing looks
// like a statement; it never guesses.
func extractStatement(raw string) string {
	text := stripFences(raw)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)

	// Output that opens with a statement keyword is handed through whole,
	// so the guard can reject it explicitly. Searching for an embedded
	// SELECT here would launder DELETE ... IN (SELECT ...) or a CTE down
	// to its inner query.
	first := firstWord(lower)
	if first != "select" {
		for _, keyword := range statementKeywords {
			if first == keyword {
				return truncateAtSeparator(text)
			}
		}
	}

	start := indexWord(lower, "select")
	if start < 0 {
		return ""
	}
	return truncateAtSeparator(text[start:])
}

// truncateAtSeparator cuts trailing prose after the first statement
// separator outside string literals, keeping the separator.
func truncateAtSeparator(text string) string {
	masked := maskLiterals(text)
	if idx := strings.IndexByte(masked, ';'); idx >= 0 {
		return strings.TrimSpace(text[:idx+1])
	}
	return strings.TrimSpace(text)
}

func firstWord(lower string) string {
	for i := 0; i < len(lower); i++ {
		if !isWordChar(lower[i]) {
			continue
		}
		j := i
		for j < len(lower) && isWordChar(lower[j]) {
			j++
		}
		return lower[i:j]
	}
	return ""
}
