package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/querygate/querygate/core/internal/sdata"
)

// Every failure a caller can see maps to exactly one of these kinds.
// Transports switch on them with errors.Is to pick status codes.
var (
	// ErrValidation marks schema contract violations: unknown tables,
	// columns, relations, operators or malformed operand shapes. Raised
	// before any statement executes.
	ErrValidation = errors.New("validation failed")

	// ErrExecution marks an underlying statement failure. The request
	// aborts with no partial result.
	ErrExecution = errors.New("execution failed")

	// ErrPoolUnavailable marks a reference to a database with no live
	// pool, including the teardown window during a reload.
	ErrPoolUnavailable = errors.New("database unavailable")

	// ErrReloadRejected marks a reload that failed validation or
	// connectivity probing. Prior state stays fully intact.
	ErrReloadRejected = errors.New("reload rejected")
)

type requestError struct {
	kind  error
	msg   string
	cause error
}

func (e *requestError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *requestError) Is(target error) bool { return target == e.kind }
func (e *requestError) Unwrap() error        { return e.cause }

func validationError(err error) error {
	return &requestError{kind: ErrValidation, msg: err.Error()}
}

func validationErrorf(format string, args ...any) error {
	return &requestError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func executionError(db string, err error) error {
	if isPoolClosed(err) {
		return poolUnavailableError(db)
	}
	return &requestError{kind: ErrExecution, msg: "database " + db, cause: err}
}

func poolUnavailableError(db string) error {
	return &requestError{kind: ErrPoolUnavailable, msg: "no pool for database " + db}
}

func schemaViolationsError(vs []sdata.Violation) error {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.String()
	}
	return &requestError{kind: ErrValidation, msg: "schema: " + strings.Join(msgs, "; ")}
}

// isPoolClosed detects statements that raced a reload teardown. The
// sentinel is unexported in database/sql so the text is matched.
func isPoolClosed(err error) bool {
	return err != nil && strings.Contains(err.Error(), "sql: database is closed")
}

// ReloadError reports why a reload was rejected: schema violations,
// failed connectivity probes keyed by database id, or both.
type ReloadError struct {
	Violations []sdata.Violation `json:"violations,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
	cause      error
}

func (e *ReloadError) Is(target error) bool { return target == ErrReloadRejected }
func (e *ReloadError) Unwrap() error        { return e.cause }

func (e *ReloadError) Error() string {
	var parts []string
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	dbs := make([]string, 0, len(e.Failed))
	for db := range e.Failed {
		dbs = append(dbs, db)
	}
	sort.Strings(dbs)
	for _, db := range dbs {
		parts = append(parts, fmt.Sprintf("database %s unreachable: %s", db, e.Failed[db]))
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	return "reload rejected: " + strings.Join(parts, "; ")
}
