package dialect

import (
	"fmt"
	"strings"
)

type MySQLDialect struct{}

func (d *MySQLDialect) Name() string {
	return "mysql"
}

func (d *MySQLDialect) BindVar(i int) string {
	return "?"
}

func (d *MySQLDialect) QuoteIdentifier(s string) string {
	return quoteWith(s, "`")
}

func (d *MySQLDialect) RenderILike(w *strings.Builder, col, bindvar string) {
	w.WriteString(`LOWER(`)
	w.WriteString(col)
	w.WriteString(`) LIKE LOWER(`)
	w.WriteString(bindvar)
	w.WriteString(`)`)
}

func (d *MySQLDialect) RenderPaging(w *strings.Builder, p Paging) {
	switch {
	case p.HasLimit && p.HasOffset:
		fmt.Fprintf(w, ` LIMIT %d OFFSET %d`, p.Limit, p.Offset)
	case p.HasLimit:
		fmt.Fprintf(w, ` LIMIT %d`, p.Limit)
	case p.HasOffset:
		// MySQL has no offset-only form; the manual recommends this limit.
		fmt.Fprintf(w, ` LIMIT 18446744073709551615 OFFSET %d`, p.Offset)
	}
}
