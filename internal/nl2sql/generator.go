package nl2sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/schema"
)

type GeneratorConfig struct {
	Temperature float64
	MaxTokens   int
}

// Generator asks the completion backend for a single read-only SELECT
// grounded in the schema snapshot. The prompt carries table and column
// names and types only, never sample row data.
type Generator struct {
	client      llm.Client
	temperature float64
	maxTokens   int
}

func NewGenerator(client llm.Client, cfg GeneratorConfig) *Generator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &Generator{client: client, temperature: cfg.Temperature, maxTokens: maxTokens}
}

func (g *Generator) Generate(ctx context.Context, question string, schemaCtx schema.Context) (Candidate, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildGeneratorPrompt(schemaCtx)},
		{Role: llm.RoleUser, Content: strings.TrimSpace(question)},
	}

	raw, err := g.client.Complete(ctx, messages, llm.Options{
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("generate sql: %w", err)
	}

	statement := extractStatement(raw)
	if statement == "" {
		return Candidate{Kind: StatementOther}, ErrNoStatement
	}

	kind := StatementOther
	if strings.HasPrefix(strings.ToLower(statement), "select") {
		kind = StatementSelect
	}

	return Candidate{
		RawText:          statement,
		ReferencedTables: referencedTables(statement, schemaCtx),
		Kind:             kind,
	}, nil
}

// referencedTables matches identifiers in the statement against the schema's
// table names. The list feeds the guard; it is never executed logic.
func referencedTables(statement string, schemaCtx schema.Context) []string {
	masked := strings.ToLower(maskLiterals(statement))
	var matched []string
	for _, name := range schemaCtx.TableNames() {
		if containsWord(masked, strings.ToLower(name)) {
			matched = append(matched, name)
		}
	}
	return matched
}

func buildGeneratorPrompt(schemaCtx schema.Context) string {
	var sb strings.Builder
	sb.WriteString("You are an expert SQL generator. Convert the user's question into a single safe PostgreSQL SELECT statement.\n\n")
	sb.WriteString("SCHEMA:\n")
	for _, table := range schemaCtx.Tables {
		sb.WriteString("Table: ")
		sb.WriteString(table.Name)
		sb.WriteString("\n")
		for _, column := range table.Columns {
			sb.WriteString("- ")
			sb.WriteString(column.Name)
			sb.WriteString(" (")
			sb.WriteString(column.Type)
			if column.Nullable {
				sb.WriteString(", nullable")
			}
			sb.WriteString(")\n")
		}
	}
	sb.WriteString("\nRULES:\n")
	sb.WriteString("1. Generate exactly one SELECT statement over the listed tables.\n")
	sb.WriteString("2. Never use INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE, GRANT or any other DML/DDL.\n")
	sb.WriteString("3. Use PostgreSQL syntax with single quotes for string literals.\n")
	sb.WriteString("4. For time windows use NOW() - INTERVAL '...' or CURRENT_DATE.\n")
	sb.WriteString("5. Prefer ORDER BY on the relevant time column, newest first.\n")
	sb.WriteString("6. Return ONLY SQL. No markdown, no explanation.\n")
	return sb.String()
}
