package core

import (
	"context"
	"fmt"

	"github.com/querygate/querygate/core/internal/clause"
)

// joinPlan is one validated join of a join request.
type joinPlan struct {
	spec  JoinSpec
	db    string
	opts  *clause.Options
	empty []map[string]any // shared empty list for unmatched rows
}

// Join executes a join request: fetch the main rows, then for each
// declared join fetch the related rows for every observed key in one
// membership filtered statement and hash-join them in memory. The
// tables may live on different databases; nothing here relies on a
// native SQL join.
func (g *Engine) Join(c context.Context, req JoinRequest) (JoinResult, error) {
	qg := g.Load().(*engineState)

	c1, sp := qg.spanStart(c, "Join Request")
	defer sp.End()

	main, joins, err := qg.planJoin(req)
	if err != nil {
		sp.Error(err)
		return nil, err
	}

	rows, err := qg.fetchTable(c1, main.db, req.MainTable, main.opts)
	if err != nil {
		sp.Error(err)
		return nil, err
	}
	if len(rows) == 0 {
		return JoinResult{}, nil
	}

	for i := range joins {
		if err := qg.applyJoin(c1, rows, &joins[i]); err != nil {
			sp.Error(err)
			return nil, err
		}
	}
	return rows, nil
}

func (qg *engineState) planJoin(req JoinRequest) (*tablePlan, []joinPlan, error) {
	mt, ok := qg.schema.Table(req.MainTable)
	if !ok {
		return nil, nil, validationErrorf("unknown table %q", req.MainTable)
	}

	raw := make(map[string]any, len(req.MainFilters)+1)
	for k, v := range req.MainFilters {
		raw[k] = v
	}
	if len(req.MainSelect) != 0 {
		raw["select"] = req.MainSelect
	}
	mo, err := clause.ParseOptions(req.MainTable, mt, raw)
	if err != nil {
		return nil, nil, validationError(err)
	}
	main := &tablePlan{name: req.MainTable, db: mt.DB, opts: mo}

	seen := make(map[string]struct{}, len(req.Joins))
	joins := make([]joinPlan, 0, len(req.Joins))
	for _, j := range req.Joins {
		jt, ok := qg.schema.Table(j.Table)
		if !ok {
			return nil, nil, validationErrorf("unknown table %q", j.Table)
		}
		if _, dup := seen[j.Table]; dup {
			return nil, nil, validationErrorf("join %s: declared twice, attached fields would collide", j.Table)
		}
		seen[j.Table] = struct{}{}
		if mt.HasColumn(j.Table) {
			return nil, nil, validationErrorf("join %s: collides with a column of %s", j.Table, req.MainTable)
		}
		if !mt.HasColumn(j.LocalKey) {
			return nil, nil, validationErrorf("join %s: localKey %q is not a column of %s", j.Table, j.LocalKey, req.MainTable)
		}
		if !jt.HasColumn(j.ForeignKey) {
			return nil, nil, validationErrorf("join %s: foreignKey %q is not a column of %s", j.Table, j.ForeignKey, j.Table)
		}

		// Rows are bucketed by their fetched foreignKey value, so a
		// select list that drops it could never match anything.
		if len(j.Select) != 0 {
			found := false
			for _, c := range j.Select {
				if c == j.ForeignKey {
					found = true
					break
				}
			}
			if !found {
				return nil, nil, validationErrorf(
					"join %s: select must include the foreignKey column %q", j.Table, j.ForeignKey)
			}
		}

		jraw := make(map[string]any, len(j.Filters)+1)
		for k, v := range j.Filters {
			jraw[k] = v
		}
		if len(j.Select) != 0 {
			jraw["select"] = j.Select
		}
		jo, err := clause.ParseOptions(j.Table, jt, jraw)
		if err != nil {
			return nil, nil, validationError(err)
		}
		joins = append(joins, joinPlan{spec: j, db: jt.DB, opts: jo})
	}
	return main, joins, nil
}

// applyJoin resolves one join against the main rows. Key values are
// hashed by their fmt.Sprint form, so the numeric and string forms of
// one logical key compare equal; cross-database ids routinely differ
// in scanned type.
func (qg *engineState) applyJoin(c context.Context, rows []map[string]any, jp *joinPlan) error {
	jp.empty = []map[string]any{}

	// Distinct non-null key values in first-seen order keeps the bound
	// parameter order deterministic.
	seen := make(map[string]struct{}, len(rows))
	vals := make([]any, 0, len(rows))
	for _, row := range rows {
		v, ok := row[jp.spec.LocalKey]
		if !ok || v == nil {
			continue
		}
		k := fmt.Sprint(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		vals = append(vals, v)
	}

	if len(vals) == 0 {
		for _, row := range rows {
			row[jp.spec.Table] = jp.empty
		}
		return nil
	}

	cond := clause.Cond{Column: jp.spec.ForeignKey, Op: clause.OpIn, Args: vals}
	fetched, err := qg.fetchTable(c, jp.db, jp.spec.Table, jp.opts.WithFilter(cond))
	if err != nil {
		return err
	}

	buckets := make(map[string][]map[string]any, len(fetched))
	for _, fr := range fetched {
		k := fmt.Sprint(fr[jp.spec.ForeignKey])
		buckets[k] = append(buckets[k], fr)
	}

	for _, row := range rows {
		v, ok := row[jp.spec.LocalKey]
		if !ok || v == nil {
			row[jp.spec.Table] = jp.empty
			continue
		}
		b := buckets[fmt.Sprint(v)]
		if b == nil {
			b = jp.empty
		}
		row[jp.spec.Table] = b
	}
	return nil
}
