package nl2sql

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	noResultsMessage = "No results found."
	maxCellWidth     = 32
)

// Formatter renders a result set as a plain-text table. Output is a pure
// function of the input result; two identical results format identically.
type Formatter struct {
	maxRows int
}

func NewFormatter(maxRows int) *Formatter {
	if maxRows <= 0 {
		maxRows = 50
	}
	return &Formatter{maxRows: maxRows}
}

func (f *Formatter) Format(result Result) string {
	if len(result.Rows) == 0 {
		return noResultsMessage
	}

	// A single count cell reads better as a sentence than a 1x1 table.
	if len(result.Rows) == 1 && len(result.Columns) == 1 && strings.EqualFold(result.Columns[0], "count") {
		return fmt.Sprintf("Result: %s", renderCell(result.Rows[0][0]))
	}

	cells := make([][]string, 0, len(result.Rows))
	widths := make([]int, len(result.Columns))
	for i, column := range result.Columns {
		widths[i] = utf8.RuneCountInString(column)
	}
	for _, row := range result.Rows {
		rendered := make([]string, len(result.Columns))
		for i := range result.Columns {
			var value any
			if i < len(row) {
				value = row[i]
			}
			rendered[i] = renderCell(value)
			if width := utf8.RuneCountInString(rendered[i]); width > widths[i] {
				widths[i] = width
			}
		}
		cells = append(cells, rendered)
	}

	var sb strings.Builder
	writeRow(&sb, result.Columns, widths)
	for i, width := range widths {
		if i > 0 {
			sb.WriteString("-+-")
		}
		sb.WriteString(strings.Repeat("-", width))
	}
	sb.WriteString("\n")
	for _, row := range cells {
		writeRow(&sb, row, widths)
	}
	if result.Truncated {
		fmt.Fprintf(&sb, "\n(results truncated at %d rows)", f.maxRows)
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, values []string, widths []int) {
	for i, value := range values {
		if i > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(value)
		if i < len(values)-1 {
			if pad := widths[i] - utf8.RuneCountInString(value); pad > 0 {
				sb.WriteString(strings.Repeat(" ", pad))
			}
		}
	}
	sb.WriteString("\n")
}

func renderCell(value any) string {
	var rendered string
	switch v := value.(type) {
	case nil:
		rendered = "NULL"
	case time.Time:
		rendered = v.UTC().Format(time.RFC3339)
	case []byte:
		rendered = string(v)
	case string:
		rendered = v
	default:
		rendered = fmt.Sprintf("%v", v)
	}
	rendered = strings.ReplaceAll(rendered, "\n", " ")
	if utf8.RuneCountInString(rendered) > maxCellWidth {
		runes := []rune(rendered)
		rendered = string(runes[:maxCellWidth-3]) + "..."
	}
	return rendered
}
