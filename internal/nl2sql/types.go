// Package nl2sql turns natural-language questions into guarded, read-only
// SQL and renders the results. The pipeline is generate -> check -> execute
// -> format; nothing reaches the database without an accepted verdict.
package nl2sql

import (
	"errors"
	"fmt"
)

type StatementKind string

const (
	StatementSelect StatementKind = "SELECT"
	StatementOther  StatementKind = "OTHER"
)

// Candidate is a generated statement that has not been validated. It is never
// executed directly; only the guard's sanitized text may run.
type Candidate struct {
	RawText          string
	ReferencedTables []string
	Kind             StatementKind
}

type Violation string

const (
	ViolationEmpty              Violation = "EMPTY_STATEMENT"
	ViolationNotSelect          Violation = "NOT_SELECT"
	ViolationForbiddenKeyword   Violation = "FORBIDDEN_KEYWORD"
	ViolationMultipleStatements Violation = "MULTIPLE_STATEMENTS"
	ViolationComment            Violation = "COMMENT"
	ViolationUnknownTable       Violation = "UNKNOWN_TABLE"
	ViolationTooLong            Violation = "STATEMENT_TOO_LONG"
)

// Verdict is the guard's decision. SanitizedText is only set when Accepted,
// and that exact text is the only thing the executor may run.
type Verdict struct {
	Accepted      bool
	Violations    []Violation
	SanitizedText string
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

type ExecErrorKind string

const (
	ExecTimeout      ExecErrorKind = "TIMEOUT"
	ExecPermission   ExecErrorKind = "PERMISSION"
	ExecConnectivity ExecErrorKind = "CONNECTIVITY"
	ExecUnknown      ExecErrorKind = "UNKNOWN"
)

// ExecError hides raw database error text behind a closed kind set.
type ExecError struct {
	Kind ExecErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	if e == nil {
		return "execution error"
	}
	if e.Err != nil {
		return fmt.Sprintf("query %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("query %s", e.Kind)
}

func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrNoStatement means the model output contained nothing parseable as SQL.
var ErrNoStatement = errors.New("no parseable SQL statement in model output")
