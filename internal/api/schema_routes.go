package api

import (
	"net/http"
)

type schemaResponse struct {
	Tables []schemaTable `json:"tables"`
}

type schemaTable struct {
	Name    string         `json:"name"`
	Columns []schemaColumn `json:"columns"`
}

type schemaColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema store is not configured", false, nil)
		return
	}

	snapshot := deps.Schemas.Current()
	response := schemaResponse{Tables: make([]schemaTable, 0, len(snapshot.Tables))}
	for _, table := range snapshot.Tables {
		columns := make([]schemaColumn, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, schemaColumn{Name: column.Name, Type: column.Type, Nullable: column.Nullable})
		}
		response.Tables = append(response.Tables, schemaTable{Name: table.Name, Columns: columns})
	}

	writeJSON(w, http.StatusOK, response)
}

func handleSchemaRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema store is not configured", false, nil)
		return
	}

	if err := deps.Schemas.Refresh(r.Context()); err != nil {
		// The previous snapshot stays in service; the caller can retry.
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_REFRESH_FAILED", "schema refresh failed", true, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "refreshed",
		"tables": len(deps.Schemas.Current().Tables),
	})
}
