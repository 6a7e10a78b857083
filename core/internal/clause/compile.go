package clause

import (
	"strings"

	"github.com/querygate/querygate/core/internal/dialect"
)

// Fragment is the compiled tail of one statement: the WHERE, GROUP BY,
// ORDER BY and paging clauses with a leading space, the values bound to
// its placeholders in order, and the next free placeholder index.
type Fragment struct {
	Clause string
	Args   []any
	ArgIdx int
}

// Compile renders the parsed options for one dialect. argIdx is the
// first placeholder index to use (1 for a fresh statement); callers
// composing larger statements thread the returned ArgIdx through.
func Compile(o *Options, d dialect.Dialect, argIdx int) Fragment {
	var w strings.Builder
	f := Fragment{ArgIdx: argIdx}

	for i, c := range o.Filters {
		if i == 0 {
			w.WriteString(` WHERE `)
		} else {
			w.WriteString(` AND `)
		}
		f.renderCond(&w, d, c)
	}

	for i, c := range o.GroupBy {
		if i == 0 {
			w.WriteString(` GROUP BY `)
		} else {
			w.WriteString(`, `)
		}
		w.WriteString(d.QuoteIdentifier(c))
	}

	for i, t := range o.OrderBy {
		if i == 0 {
			w.WriteString(` ORDER BY `)
		} else {
			w.WriteString(`, `)
		}
		w.WriteString(d.QuoteIdentifier(t.Column))
		if t.Desc {
			w.WriteString(` DESC`)
		} else {
			w.WriteString(` ASC`)
		}
	}

	d.RenderPaging(&w, dialect.Paging{
		Limit:     o.Limit,
		Offset:    o.Offset,
		HasLimit:  o.HasLimit,
		HasOffset: o.HasOffset,
		Ordered:   len(o.OrderBy) != 0,
	})

	f.Clause = w.String()
	return f
}

func (f *Fragment) renderCond(w *strings.Builder, d dialect.Dialect, c Cond) {
	col := d.QuoteIdentifier(c.Column)

	switch c.Op {
	case OpIsNull:
		w.WriteString(col)
		w.WriteString(` IS NULL`)

	case OpIsNotNull:
		w.WriteString(col)
		w.WriteString(` IS NOT NULL`)

	case OpILike:
		d.RenderILike(w, col, f.bind(c.Args[0], d))

	case OpIn, OpNotIn:
		w.WriteString(col)
		if c.Op == OpNotIn {
			w.WriteString(` NOT IN (`)
		} else {
			w.WriteString(` IN (`)
		}
		for i, v := range c.Args {
			if i != 0 {
				w.WriteString(`, `)
			}
			w.WriteString(f.bind(v, d))
		}
		w.WriteString(`)`)

	case OpBetween:
		w.WriteString(col)
		w.WriteString(` BETWEEN `)
		w.WriteString(f.bind(c.Args[0], d))
		w.WriteString(` AND `)
		w.WriteString(f.bind(c.Args[1], d))

	default:
		w.WriteString(col)
		w.WriteString(` `)
		w.WriteString(sqlOp(c.Op))
		w.WriteString(` `)
		w.WriteString(f.bind(c.Args[0], d))
	}
}

// bind reserves the next placeholder for v and returns its bindvar.
func (f *Fragment) bind(v any, d dialect.Dialect) string {
	bv := d.BindVar(f.ArgIdx)
	f.Args = append(f.Args, v)
	f.ArgIdx++
	return bv
}

func sqlOp(op Op) string {
	switch op {
	case OpEq:
		return `=`
	case OpNeq:
		return `!=`
	case OpGt:
		return `>`
	case OpLt:
		return `<`
	case OpGte:
		return `>=`
	case OpLte:
		return `<=`
	case OpLike:
		return `LIKE`
	default:
		return `=`
	}
}

// SelectStatement assembles the full statement for a table fetch from
// the quoted select list and a compiled fragment.
func SelectStatement(d dialect.Dialect, table string, cols []string, f Fragment) string {
	var w strings.Builder
	w.WriteString(`SELECT `)
	for i, c := range cols {
		if i != 0 {
			w.WriteString(`, `)
		}
		w.WriteString(d.QuoteIdentifier(c))
	}
	w.WriteString(` FROM `)
	w.WriteString(d.QuoteIdentifier(table))
	w.WriteString(f.Clause)
	return w.String()
}
