package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresIntrospector reads table and column descriptors from
// information_schema. Only base tables in the configured schema are listed,
// which keeps catalog tables out of the guard's allow-list.
type PostgresIntrospector struct {
	db       *sql.DB
	pgSchema string
}

func NewPostgresIntrospector(db *sql.DB, pgSchema string) *PostgresIntrospector {
	if pgSchema == "" {
		pgSchema = "public"
	}
	return &PostgresIntrospector{db: db, pgSchema: pgSchema}
}

func (p *PostgresIntrospector) Introspect(ctx context.Context) (Context, error) {
	const query = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES' AS is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1
  AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

	rows, err := p.db.QueryContext(ctx, query, p.pgSchema)
	if err != nil {
		return Context{}, fmt.Errorf("introspect schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		snapshot Context
		current  *Table
	)
	for rows.Next() {
		var (
			tableName string
			column    Column
		)
		if err := rows.Scan(&tableName, &column.Name, &column.Type, &column.Nullable); err != nil {
			return Context{}, fmt.Errorf("scan column row: %w", err)
		}
		if current == nil || current.Name != tableName {
			snapshot.Tables = append(snapshot.Tables, Table{Name: tableName})
			current = &snapshot.Tables[len(snapshot.Tables)-1]
		}
		current.Columns = append(current.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return Context{}, fmt.Errorf("iterate column rows: %w", err)
	}
	return snapshot, nil
}
