// Package clause turns the per-table options of a query request into
// parameterized SQL clauses. Parsing validates every column, operator
// and operand shape against the schema; compilation is a pure render
// step that threads placeholder indexes through the statement.
package clause

import (
	"fmt"
	"math"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/querygate/querygate/core/internal/sdata"
)

// Option keys excluded from filter interpretation. Every other key in a
// table options map is a filter on the column of the same name.
var reservedKeys = map[string]struct{}{
	"select":    {},
	"relations": {},
	"orderBy":   {},
	"limit":     {},
	"offset":    {},
	"groupBy":   {},
}

type Op int

const (
	OpEq Op = iota
	OpNeq
	OpGt
	OpLt
	OpGte
	OpLte
	OpLike
	OpILike
	OpIn
	OpNotIn
	OpBetween
	OpIsNull
	OpIsNotNull
)

var opNames = map[string]Op{
	"gt":        OpGt,
	"lt":        OpLt,
	"gte":       OpGte,
	"lte":       OpLte,
	"like":      OpLike,
	"ilike":     OpILike,
	"neq":       OpNeq,
	"in":        OpIn,
	"notIn":     OpNotIn,
	"between":   OpBetween,
	"isNull":    OpIsNull,
	"isNotNull": OpIsNotNull,
}

// Cond is one validated filter condition. Args holds the bound operands
// in placeholder order; the null checks carry none.
type Cond struct {
	Column string
	Op     Op
	Args   []any
}

// OrderTerm is one validated orderBy term.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Options is the validated form of one table options map. It is treated
// as immutable after parsing; WithFilter returns an extended copy so
// derived filters never leak between rows or requests.
type Options struct {
	Select    []string
	Relations map[string]map[string]any
	OrderBy   []OrderTerm
	GroupBy   []string
	Limit     int
	Offset    int
	HasLimit  bool
	HasOffset bool
	Filters   []Cond
}

type rawOptions struct {
	Select    []string                  `mapstructure:"select"`
	Relations map[string]map[string]any `mapstructure:"relations"`
	OrderBy   any                       `mapstructure:"orderBy"`
	GroupBy   any                       `mapstructure:"groupBy"`
	Limit     any                       `mapstructure:"limit"`
	Offset    any                       `mapstructure:"offset"`
}

// ParseOptions validates a table options map against the table schema.
// The select list defaults to the table's full column list. Filter keys
// are processed in sorted order so bound values land in a deterministic
// placeholder order regardless of map iteration.
func ParseOptions(tname string, t sdata.Table, raw map[string]any) (*Options, error) {
	if raw == nil {
		raw = map[string]any{}
	}

	var ro rawOptions
	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   &ro,
		Metadata: &md,
		// Reserved keys are matched exactly; a column that only differs
		// by case stays a filter key.
		MatchName: func(mapKey, fieldName string) bool { return mapKey == fieldName },
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("table %s: %w", tname, err)
	}

	o := &Options{Relations: ro.Relations}

	if len(ro.Select) == 0 {
		o.Select = append(o.Select, t.Columns...)
	} else {
		for _, c := range ro.Select {
			if !t.HasColumn(c) {
				return nil, unknownColumn(tname, c)
			}
		}
		o.Select = ro.Select
	}

	if o.OrderBy, err = parseOrderBy(tname, t, ro.OrderBy); err != nil {
		return nil, err
	}
	if o.GroupBy, err = parseGroupBy(tname, t, ro.GroupBy); err != nil {
		return nil, err
	}

	if n, ok := intOption(ro.Limit); ok && n > 0 {
		o.Limit, o.HasLimit = n, true
	}
	if n, ok := intOption(ro.Offset); ok && n >= 0 {
		o.Offset, o.HasOffset = n, true
	}

	cols := make([]string, 0, len(md.Unused))
	cols = append(cols, md.Unused...)
	sort.Strings(cols)

	for _, col := range cols {
		if !t.HasColumn(col) {
			return nil, unknownColumn(tname, col)
		}
		cond, err := parseFilter(tname, col, raw[col])
		if err != nil {
			return nil, err
		}
		o.Filters = append(o.Filters, cond)
	}
	return o, nil
}

// IsFiltering reports whether a relation options map carries anything
// besides select and nested relations. Such relations take part in the
// row inclusion policy.
func IsFiltering(raw map[string]any) bool {
	for k := range raw {
		if k != "select" && k != "relations" {
			return true
		}
	}
	return false
}

// WithFilter returns a copy of o with one condition appended. The
// receiver is never modified.
func (o *Options) WithFilter(c Cond) *Options {
	no := *o
	no.Filters = make([]Cond, 0, len(o.Filters)+1)
	no.Filters = append(no.Filters, o.Filters...)
	no.Filters = append(no.Filters, c)
	return &no
}

func parseFilter(tname, col string, val any) (Cond, error) {
	switch v := val.(type) {
	case nil:
		return Cond{Column: col, Op: OpIsNull}, nil

	case map[string]any:
		if len(v) != 1 {
			return Cond{}, fmt.Errorf(
				"table %s, filter %s: operator maps must have exactly one entry", tname, col)
		}
		for name, operand := range v {
			return parseOp(tname, col, name, operand)
		}
		panic("unreachable")

	case []any:
		return Cond{}, fmt.Errorf(
			"table %s, filter %s: a bare list is not a valid filter value, use the in operator", tname, col)

	default:
		return Cond{Column: col, Op: OpEq, Args: []any{val}}, nil
	}
}

func parseOp(tname, col, name string, operand any) (Cond, error) {
	op, ok := opNames[name]
	if !ok {
		return Cond{}, fmt.Errorf("table %s, filter %s: unknown operator %q", tname, col, name)
	}

	switch op {
	case OpIsNull, OpIsNotNull:
		// These take no operand; any supplied value is ignored.
		return Cond{Column: col, Op: op}, nil

	case OpIn, OpNotIn:
		list, ok := operand.([]any)
		if !ok || len(list) == 0 {
			return Cond{}, fmt.Errorf(
				"table %s, filter %s: operator %s requires a non-empty list", tname, col, name)
		}
		return Cond{Column: col, Op: op, Args: list}, nil

	case OpBetween:
		list, ok := operand.([]any)
		if !ok || len(list) != 2 {
			return Cond{}, fmt.Errorf(
				"table %s, filter %s: operator between requires a list of exactly two values", tname, col)
		}
		return Cond{Column: col, Op: op, Args: list}, nil

	default:
		if !isScalar(operand) {
			return Cond{}, fmt.Errorf(
				"table %s, filter %s: operator %s requires a scalar operand", tname, col, name)
		}
		return Cond{Column: col, Op: op, Args: []any{operand}}, nil
	}
}

func parseOrderBy(tname string, t sdata.Table, val any) ([]OrderTerm, error) {
	orderCol := func(c string, desc bool) (OrderTerm, error) {
		if !t.HasColumn(c) {
			return OrderTerm{}, unknownColumn(tname, c)
		}
		return OrderTerm{Column: c, Desc: desc}, nil
	}

	switch v := val.(type) {
	case nil:
		return nil, nil

	case string:
		term, err := orderCol(v, false)
		if err != nil {
			return nil, err
		}
		return []OrderTerm{term}, nil

	case []any:
		terms := make([]OrderTerm, 0, len(v))
		for _, e := range v {
			c, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("table %s: orderBy list entries must be column names", tname)
			}
			term, err := orderCol(c, false)
			if err != nil {
				return nil, err
			}
			terms = append(terms, term)
		}
		return terms, nil

	case map[string]any:
		cols := make([]string, 0, len(v))
		for c := range v {
			cols = append(cols, c)
		}
		sort.Strings(cols)

		terms := make([]OrderTerm, 0, len(cols))
		for _, c := range cols {
			dir, ok := v[c].(string)
			if !ok || (dir != "asc" && dir != "desc" && dir != "ASC" && dir != "DESC") {
				return nil, fmt.Errorf(
					"table %s: orderBy direction for %s must be asc or desc", tname, c)
			}
			term, err := orderCol(c, dir == "desc" || dir == "DESC")
			if err != nil {
				return nil, err
			}
			terms = append(terms, term)
		}
		return terms, nil

	default:
		return nil, fmt.Errorf(
			"table %s: orderBy must be a column, a list of columns, or a column to direction map", tname)
	}
}

func parseGroupBy(tname string, t sdata.Table, val any) ([]string, error) {
	if val == nil {
		return nil, nil
	}
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("table %s: groupBy must be a list of columns", tname)
	}
	cols := make([]string, 0, len(list))
	for _, e := range list {
		c, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("table %s: groupBy must be a list of columns", tname)
		}
		if !t.HasColumn(c) {
			return nil, unknownColumn(tname, c)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// intOption extracts an integer from a decoded JSON value. Anything
// else, fractional floats included, is silently dropped.
func intOption(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func unknownColumn(tname, col string) error {
	return fmt.Errorf("table %s has no column %q", tname, col)
}
