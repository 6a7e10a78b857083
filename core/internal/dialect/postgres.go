package dialect

import (
	"fmt"
	"strings"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string {
	return "postgres"
}

func (d *PostgresDialect) BindVar(i int) string {
	return fmt.Sprintf("$%d", i)
}

func (d *PostgresDialect) QuoteIdentifier(s string) string {
	return quoteWith(s, `"`)
}

func (d *PostgresDialect) RenderILike(w *strings.Builder, col, bindvar string) {
	w.WriteString(col)
	w.WriteString(` ILIKE `)
	w.WriteString(bindvar)
}

func (d *PostgresDialect) RenderPaging(w *strings.Builder, p Paging) {
	if p.HasLimit {
		fmt.Fprintf(w, ` LIMIT %d`, p.Limit)
	}
	if p.HasOffset {
		fmt.Fprintf(w, ` OFFSET %d`, p.Offset)
	}
}
