package dialect

import (
	"fmt"
	"strings"
)

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

func (d *SQLiteDialect) BindVar(i int) string {
	return "?"
}

func (d *SQLiteDialect) QuoteIdentifier(s string) string {
	return quoteWith(s, `"`)
}

func (d *SQLiteDialect) RenderILike(w *strings.Builder, col, bindvar string) {
	w.WriteString(`LOWER(`)
	w.WriteString(col)
	w.WriteString(`) LIKE LOWER(`)
	w.WriteString(bindvar)
	w.WriteString(`)`)
}

func (d *SQLiteDialect) RenderPaging(w *strings.Builder, p Paging) {
	switch {
	case p.HasLimit && p.HasOffset:
		fmt.Fprintf(w, ` LIMIT %d OFFSET %d`, p.Limit, p.Offset)
	case p.HasLimit:
		fmt.Fprintf(w, ` LIMIT %d`, p.Limit)
	case p.HasOffset:
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
		fmt.Fprintf(w, ` LIMIT -1 OFFSET %d`, p.Offset)
	}
}
