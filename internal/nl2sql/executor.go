package nl2sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tabletalk/tabletalk/internal/observability"
)

type ExecutorConfig struct {
	MaxRows      int
	QueryTimeout time.Duration
}

// Executor runs guarded statements through the read-only pool. The guard
// having approved the text does not replace the role restriction; both hold
// at the same time.
type Executor struct {
	db      *sql.DB
	maxRows int
	timeout time.Duration
}

func NewExecutor(db *sql.DB, cfg ExecutorConfig) *Executor {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 50
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{db: db, maxRows: maxRows, timeout: timeout}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(queryCtx, sqlText)
	if err != nil {
		return Result{}, classifyDBError(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, classifyDBError(err)
	}

	result := Result{Columns: columns}
	for rows.Next() {
		if len(result.Rows) == e.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, classifyDBError(err)
		}
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				values[i] = string(raw)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		// Partial results are discarded on any mid-scan failure.
		return Result{}, classifyDBError(err)
	}

	observability.ObserveQuery(time.Since(start), len(result.Rows))
	return result, nil
}

// classifyDBError maps database failures onto the closed ExecError kind set.
// Raw driver error text never travels past this boundary.
func classifyDBError(err error) error {
	kind := ExecUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ExecTimeout
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		kind = ExecConnectivity
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "57014": // query_canceled, statement_timeout included
				kind = ExecTimeout
			case pgErr.Code == "42501": // insufficient_privilege
				kind = ExecPermission
			case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
				kind = ExecConnectivity
			}
		}
	}
	return &ExecError{Kind: kind, Err: fmt.Errorf("execute query: %w", err)}
}
