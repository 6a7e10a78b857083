package clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querygate/querygate/core/internal/dialect"
	"github.com/querygate/querygate/core/internal/sdata"
)

var patients = sdata.Table{
	DB:      "clinic",
	Columns: []string{"patient_id", "name", "age", "city"},
}

func pg(t *testing.T) dialect.Dialect {
	d, err := dialect.ForType("postgres")
	require.NoError(t, err)
	return d
}

func mustParse(t *testing.T, raw map[string]any) *Options {
	t.Helper()
	o, err := ParseOptions("patients", patients, raw)
	require.NoError(t, err)
	return o
}

func TestEmptyOptions(t *testing.T) {
	o := mustParse(t, map[string]any{})
	f := Compile(o, pg(t), 1)

	assert.Empty(t, f.Clause, "no clauses for empty options")
	assert.Empty(t, f.Args)
	assert.Equal(t, 1, f.ArgIdx)
	assert.Equal(t, patients.Columns, o.Select, "select defaults to all columns")
}

func TestImplicitEquality(t *testing.T) {
	o := mustParse(t, map[string]any{"city": "Oslo"})
	f := Compile(o, pg(t), 1)

	assert.Equal(t, ` WHERE "city" = $1`, f.Clause)
	assert.Equal(t, []any{"Oslo"}, f.Args)
	assert.Equal(t, 2, f.ArgIdx)
}

func TestNullLiteralFilter(t *testing.T) {
	o := mustParse(t, map[string]any{"city": nil})
	f := Compile(o, pg(t), 1)

	assert.Equal(t, ` WHERE "city" IS NULL`, f.Clause)
	assert.Empty(t, f.Args)
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name       string
		filter     any
		wantClause string
		wantArgs   []any
	}{
		{"gt", map[string]any{"gt": 30.0}, ` WHERE "age" > $1`, []any{30.0}},
		{"lt", map[string]any{"lt": 30.0}, ` WHERE "age" < $1`, []any{30.0}},
		{"gte", map[string]any{"gte": 30.0}, ` WHERE "age" >= $1`, []any{30.0}},
		{"lte", map[string]any{"lte": 30.0}, ` WHERE "age" <= $1`, []any{30.0}},
		{"neq", map[string]any{"neq": 30.0}, ` WHERE "age" != $1`, []any{30.0}},
		{"like", map[string]any{"like": "Jo%"}, ` WHERE "age" LIKE $1`, []any{"Jo%"}},
		{"ilike", map[string]any{"ilike": "jo%"}, ` WHERE "age" ILIKE $1`, []any{"jo%"}},
		{"in", map[string]any{"in": []any{1.0, 2.0, 3.0}}, ` WHERE "age" IN ($1, $2, $3)`, []any{1.0, 2.0, 3.0}},
		{"notIn", map[string]any{"notIn": []any{1.0, 2.0}}, ` WHERE "age" NOT IN ($1, $2)`, []any{1.0, 2.0}},
		{"between", map[string]any{"between": []any{18.0, 65.0}}, ` WHERE "age" BETWEEN $1 AND $2`, []any{18.0, 65.0}},
		{"isNull", map[string]any{"isNull": true}, ` WHERE "age" IS NULL`, nil},
		{"isNotNull", map[string]any{"isNotNull": true}, ` WHERE "age" IS NOT NULL`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := mustParse(t, map[string]any{"age": tt.filter})
			f := Compile(o, pg(t), 1)
			assert.Equal(t, tt.wantClause, f.Clause)
			assert.Equal(t, tt.wantArgs, f.Args)
		})
	}
}

func TestOperandShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    map[string]any
		errHas string
	}{
		{"empty in", map[string]any{"age": map[string]any{"in": []any{}}}, "non-empty list"},
		{"in scalar", map[string]any{"age": map[string]any{"in": 4.0}}, "non-empty list"},
		{"between one", map[string]any{"age": map[string]any{"between": []any{1.0}}}, "exactly two"},
		{"between three", map[string]any{"age": map[string]any{"between": []any{1.0, 2.0, 3.0}}}, "exactly two"},
		{"unknown op", map[string]any{"age": map[string]any{"matches": "x"}}, `unknown operator "matches"`},
		{"two entry map", map[string]any{"age": map[string]any{"gt": 1.0, "lt": 2.0}}, "exactly one entry"},
		{"bare list", map[string]any{"age": []any{1.0, 2.0}}, "bare list"},
		{"gt list", map[string]any{"age": map[string]any{"gt": []any{1.0}}}, "scalar operand"},
		{"unknown filter column", map[string]any{"height": 1.0}, `no column "height"`},
		{"unknown select column", map[string]any{"select": []any{"height"}}, `no column "height"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions("patients", patients, tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errHas)
		})
	}
}

func TestMultipleFiltersSortedAndConjoined(t *testing.T) {
	o := mustParse(t, map[string]any{
		"city": "Oslo",
		"age":  map[string]any{"gte": 18.0},
	})
	f := Compile(o, pg(t), 1)

	// Filter keys compile in sorted column order.
	assert.Equal(t, ` WHERE "age" >= $1 AND "city" = $2`, f.Clause)
	assert.Equal(t, []any{18.0, "Oslo"}, f.Args)
	assert.Equal(t, 3, f.ArgIdx)
}

func TestPlaceholderStartIndex(t *testing.T) {
	o := mustParse(t, map[string]any{"city": "Oslo", "age": map[string]any{"in": []any{1.0, 2.0}}})
	f := Compile(o, pg(t), 4)

	assert.Equal(t, ` WHERE "age" IN ($4, $5) AND "city" = $6`, f.Clause)
	assert.Equal(t, 7, f.ArgIdx)
}

func TestOrderByForms(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want string
	}{
		{"single column", "name", ` ORDER BY "name" ASC`},
		{"list", []any{"city", "name"}, ` ORDER BY "city" ASC, "name" ASC`},
		{"direction map", map[string]any{"name": "desc", "age": "asc"}, ` ORDER BY "age" ASC, "name" DESC`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := mustParse(t, map[string]any{"orderBy": tt.val})
			f := Compile(o, pg(t), 1)
			assert.Equal(t, tt.want, f.Clause)
		})
	}

	_, err := ParseOptions("patients", patients, map[string]any{"orderBy": map[string]any{"name": "sideways"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asc or desc")

	_, err = ParseOptions("patients", patients, map[string]any{"orderBy": 42.0})
	require.Error(t, err)

	_, err = ParseOptions("patients", patients, map[string]any{"orderBy": "height"})
	require.Error(t, err)
}

func TestGroupBy(t *testing.T) {
	o := mustParse(t, map[string]any{
		"select":  []any{"city"},
		"groupBy": []any{"city"},
	})
	f := Compile(o, pg(t), 1)
	assert.Equal(t, ` GROUP BY "city"`, f.Clause)

	_, err := ParseOptions("patients", patients, map[string]any{"groupBy": []any{"height"}})
	require.Error(t, err)

	_, err = ParseOptions("patients", patients, map[string]any{"groupBy": "city"})
	require.Error(t, err)
}

func TestPagingPermissiveness(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"both", map[string]any{"limit": 10.0, "offset": 20.0}, ` LIMIT 10 OFFSET 20`},
		{"limit zero dropped", map[string]any{"limit": 0.0}, ``},
		{"limit negative dropped", map[string]any{"limit": -5.0}, ``},
		{"limit fractional dropped", map[string]any{"limit": 2.5}, ``},
		{"limit string dropped", map[string]any{"limit": "10"}, ``},
		{"offset zero kept", map[string]any{"offset": 0.0}, ` OFFSET 0`},
		{"offset negative dropped", map[string]any{"offset": -1.0}, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := mustParse(t, tt.raw)
			f := Compile(o, pg(t), 1)
			assert.Equal(t, tt.want, f.Clause)
		})
	}
}

func TestReservedKeysExactCase(t *testing.T) {
	// A key differing in case from a reserved key is a filter column.
	_, err := ParseOptions("patients", patients, map[string]any{"OrderBy": "name"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "OrderBy"`)
}

func TestWithFilterCopies(t *testing.T) {
	o := mustParse(t, map[string]any{"city": "Oslo"})
	derived := o.WithFilter(Cond{Column: "patient_id", Op: OpEq, Args: []any{1}})

	assert.Len(t, o.Filters, 1, "receiver unchanged")
	assert.Len(t, derived.Filters, 2)
	assert.Equal(t, "patient_id", derived.Filters[1].Column)
}

func TestIsFiltering(t *testing.T) {
	assert.False(t, IsFiltering(map[string]any{}))
	assert.False(t, IsFiltering(map[string]any{
		"select":    []any{"a"},
		"relations": map[string]any{},
	}))
	assert.True(t, IsFiltering(map[string]any{"city": "Oslo"}))
	assert.True(t, IsFiltering(map[string]any{"limit": 5.0}), "paging counts as filtering")
	assert.True(t, IsFiltering(map[string]any{"orderBy": "name"}))
}

func TestSelectStatement(t *testing.T) {
	o := mustParse(t, map[string]any{
		"select":  []any{"patient_id", "name"},
		"city":    "Oslo",
		"orderBy": "name",
		"limit":   5.0,
	})
	f := Compile(o, pg(t), 1)
	stmt := SelectStatement(pg(t), "patients", o.Select, f)

	assert.Equal(t,
		`SELECT "patient_id", "name" FROM "patients" WHERE "city" = $1 ORDER BY "name" ASC LIMIT 5`,
		stmt)
}

func TestMysqlPlaceholders(t *testing.T) {
	d, err := dialect.ForType("mysql")
	require.NoError(t, err)

	o := mustParse(t, map[string]any{"city": "Oslo", "age": map[string]any{"in": []any{1.0, 2.0}}})
	f := Compile(o, d, 1)

	assert.Equal(t, " WHERE `age` IN (?, ?) AND `city` = ?", f.Clause)
	assert.Equal(t, []any{1.0, 2.0, "Oslo"}, f.Args)
	assert.Equal(t, 4, f.ArgIdx, "index still advances for ? placeholders")
}
