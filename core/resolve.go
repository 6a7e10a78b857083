package core

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/querygate/querygate/core/internal/clause"
	"github.com/querygate/querygate/core/internal/sdata"
)

// tablePlan is one validated top-level table of a query request.
type tablePlan struct {
	name string
	db   string
	opts *clause.Options
	rels []relationPlan
}

// relationPlan is one validated relation of its parent table. The plan
// tree mirrors the request's relation nesting.
type relationPlan struct {
	name       string // attach key on the parent row
	table      string // target table id
	db         string
	foreignKey string // column on the parent
	reference  string // column on the target
	opts       *clause.Options
	filtering  bool
	rels       []relationPlan
}

// Query executes one request end to end: plan, then execute. Planning
// validates every table, column, relation and operator reference; on
// any planning failure zero statements have run against any pool.
func (g *Engine) Query(c context.Context, req QueryRequest) (QueryResult, error) {
	qg := g.Load().(*engineState)

	c1, sp := qg.spanStart(c, "Query Request")
	defer sp.End()

	plans, err := qg.planQuery(req)
	if err != nil {
		sp.Error(err)
		return nil, err
	}

	res := make(QueryResult, len(plans))
	for i := range plans {
		p := &plans[i]
		rows, err := qg.fetchTable(c1, p.db, p.name, p.opts)
		if err != nil {
			sp.Error(err)
			return nil, err
		}

		// Zero rows or no relations requested: the fetched rows are
		// the result and no relation statement is issued.
		if len(rows) != 0 && len(p.rels) != 0 {
			if rows, err = qg.resolveRelations(c1, rows, p.rels); err != nil {
				sp.Error(err)
				return nil, err
			}
		}
		res[p.name] = rows
	}
	return res, nil
}

// Validate runs the planning phase of a query request only. Used by
// callers that translate into requests and want the schema contract
// checked without executing anything.
func (g *Engine) Validate(c context.Context, req QueryRequest) error {
	qg := g.Load().(*engineState)
	_, err := qg.planQuery(req)
	return err
}

func (qg *engineState) planQuery(req QueryRequest) ([]tablePlan, error) {
	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	sort.Strings(names)

	plans := make([]tablePlan, 0, len(names))
	for _, name := range names {
		t, ok := qg.schema.Table(name)
		if !ok {
			return nil, validationErrorf("unknown table %q", name)
		}
		o, err := clause.ParseOptions(name, t, req[name])
		if err != nil {
			return nil, validationError(err)
		}
		rels, err := qg.planRelations(name, t, o.Relations, 1)
		if err != nil {
			return nil, err
		}
		plans = append(plans, tablePlan{name: name, db: t.DB, opts: o, rels: rels})
	}
	return plans, nil
}

func (qg *engineState) planRelations(tname string, t sdata.Table, raw map[string]map[string]any, depth int) ([]relationPlan, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if depth > qg.conf.MaxDepth {
		return nil, validationErrorf("table %s: relations nested deeper than %d", tname, qg.conf.MaxDepth)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	plans := make([]relationPlan, 0, len(names))
	for _, rname := range names {
		rel, ok := t.Relation(rname)
		if !ok {
			return nil, validationErrorf("table %s has no relation %q", tname, rname)
		}
		rt, ok := qg.schema.Table(rel.Table)
		if !ok {
			return nil, validationErrorf("table %s, relation %s: unknown table %q", tname, rname, rel.Table)
		}
		o, err := clause.ParseOptions(rel.Table, rt, raw[rname])
		if err != nil {
			return nil, validationError(err)
		}
		subs, err := qg.planRelations(rel.Table, rt, o.Relations, depth+1)
		if err != nil {
			return nil, err
		}
		plans = append(plans, relationPlan{
			name:       rname,
			table:      rel.Table,
			db:         rt.DB,
			foreignKey: rel.ForeignKey,
			reference:  rel.Reference,
			opts:       o,
			filtering:  clause.IsFiltering(raw[rname]),
			rels:       subs,
		})
	}
	return plans, nil
}

// fetchTable compiles and runs the statement for one table against its
// database's pool.
func (qg *engineState) fetchTable(c context.Context, db, table string, o *clause.Options) ([]map[string]any, error) {
	conn, err := qg.conn(db)
	if err != nil {
		return nil, err
	}
	f := clause.Compile(o, conn.di, 1)
	stmt := clause.SelectStatement(conn.di, table, o.Select, f)
	return qg.fetch(c, conn, stmt, f.Args)
}

// resolveRelations attaches every relation of this level to every row,
// applies the row inclusion policy, then descends into the surviving
// rows' relation lists. Inclusion is decided on the rows a relation
// fetch returned; a deeper level shrinking one of those lists later
// does not revisit the decision.
//
// The policy is global per table: with at least one filtering relation
// a row survives only when some filtering relation returned rows for
// it, and with none every fetched row survives.
func (qg *engineState) resolveRelations(c context.Context, rows []map[string]any, rels []relationPlan) ([]map[string]any, error) {
	filtering := false
	for i := range rels {
		if rels[i].filtering {
			filtering = true
			break
		}
	}

	kept := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		matched := false
		for i := range rels {
			rp := &rels[i]
			children, err := qg.fetchRelated(c, row, rp)
			if err != nil {
				return nil, err
			}
			row[rp.name] = children
			if rp.filtering && len(children) != 0 {
				matched = true
			}
		}
		if !filtering || matched {
			kept = append(kept, row)
		}
	}

	for _, row := range kept {
		for i := range rels {
			rp := &rels[i]
			if len(rp.rels) == 0 {
				continue
			}
			children := row[rp.name].([]map[string]any)
			if len(children) == 0 {
				continue
			}
			children, err := qg.resolveRelations(c, children, rp.rels)
			if err != nil {
				return nil, err
			}
			row[rp.name] = children
		}
	}
	return kept, nil
}

// fetchRelated runs one relation statement for one parent row. The key
// filter derives from the row's foreign key value: a collection value
// becomes membership on the reference column (the many-to-many shape),
// a scalar becomes equality, and a missing or null key short-circuits
// to an empty list with no statement.
func (qg *engineState) fetchRelated(c context.Context, row map[string]any, rp *relationPlan) ([]map[string]any, error) {
	fk, ok := row[rp.foreignKey]
	if !ok || fk == nil {
		return []map[string]any{}, nil
	}

	var cond clause.Cond
	if vals, ok := collectionValues(fk); ok {
		if len(vals) == 0 {
			return []map[string]any{}, nil
		}
		cond = clause.Cond{Column: rp.reference, Op: clause.OpIn, Args: vals}
	} else {
		cond = clause.Cond{Column: rp.reference, Op: clause.OpEq, Args: []any{fk}}
	}

	return qg.fetchTable(c, rp.db, rp.table, rp.opts.WithFilter(cond))
}

// collectionValues reports whether a foreign key value is a collection:
// a decoded JSON list, or a string holding a JSON array, which is how
// array columns come back from drivers without a native array type.
func collectionValues(v any) ([]any, bool) {
	switch vv := v.(type) {
	case []any:
		return vv, true
	case string:
		s := strings.TrimSpace(vv)
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			var list []any
			if err := json.Unmarshal([]byte(s), &list); err == nil {
				return list, true
			}
		}
	}
	return nil, false
}
