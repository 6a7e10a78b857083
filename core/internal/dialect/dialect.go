// Package dialect abstracts the SQL differences between the supported
// database engines: placeholder style, identifier quoting, case
// insensitive matching and paging clauses.
package dialect

import (
	"fmt"
	"strings"
)

// Paging carries the validated limit/offset of one statement. Limit and
// Offset are only meaningful when their Has flag is set. Ordered tells
// dialects whether the statement already carries an ORDER BY, which SQL
// Server needs to know to render OFFSET/FETCH.
type Paging struct {
	Limit     int
	Offset    int
	HasLimit  bool
	HasOffset bool
	Ordered   bool
}

type Dialect interface {
	Name() string

	// BindVar returns the placeholder for the i-th bound value (1-based).
	BindVar(i int) string

	// QuoteIdentifier quotes a schema-trusted identifier, doubling any
	// embedded quote characters.
	QuoteIdentifier(s string) string

	// RenderILike writes a case insensitive pattern match for the quoted
	// column against the placeholder.
	RenderILike(w *strings.Builder, col, bindvar string)

	// RenderPaging writes the paging clause, including nothing when
	// neither limit nor offset is set.
	RenderPaging(w *strings.Builder, p Paging)
}

// ForType returns the dialect for a schema database type.
func ForType(dbtype string) (Dialect, error) {
	switch dbtype {
	case "postgres":
		return &PostgresDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	case "sqlite":
		return &SQLiteDialect{}, nil
	case "sqlserver":
		return &MSSQLDialect{}, nil
	default:
		return nil, fmt.Errorf("no dialect for database type %q", dbtype)
	}
}

func quoteWith(s, q string) string {
	return q + strings.ReplaceAll(s, q, q+q) + q
}
