package dialect

import (
	"fmt"
	"strings"
)

type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string {
	return "sqlserver"
}

func (d *MSSQLDialect) BindVar(i int) string {
	return fmt.Sprintf("@p%d", i)
}

func (d *MSSQLDialect) QuoteIdentifier(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func (d *MSSQLDialect) RenderILike(w *strings.Builder, col, bindvar string) {
	w.WriteString(`LOWER(`)
	w.WriteString(col)
	w.WriteString(`) LIKE LOWER(`)
	w.WriteString(bindvar)
	w.WriteString(`)`)
}

func (d *MSSQLDialect) RenderPaging(w *strings.Builder, p Paging) {
	if !p.HasLimit && !p.HasOffset {
		return
	}
	// OFFSET/FETCH is only legal after an ORDER BY.
	if !p.Ordered {
		w.WriteString(` ORDER BY (SELECT NULL)`)
	}
	fmt.Fprintf(w, ` OFFSET %d ROWS`, p.Offset)
	if p.HasLimit {
		fmt.Fprintf(w, ` FETCH NEXT %d ROWS ONLY`, p.Limit)
	}
}
