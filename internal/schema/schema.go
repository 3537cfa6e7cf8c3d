// Package schema holds the data-model description used to ground SQL
// generation and to allow-list tables in the guard.
package schema

import "context"

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Context is an immutable snapshot of the queryable schema. Snapshots are
// swapped whole by the Provider; nothing mutates one after it is built.
type Context struct {
	Tables []Table `json:"tables"`
}

func (c Context) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for _, table := range c.Tables {
		names = append(names, table.Name)
	}
	return names
}

func (c Context) HasTable(name string) bool {
	for _, table := range c.Tables {
		if table.Name == name {
			return true
		}
	}
	return false
}

type Introspector interface {
	Introspect(ctx context.Context) (Context, error)
}
