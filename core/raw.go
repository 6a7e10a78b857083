package core

import (
	"context"
	"strings"
)

// Statements whose leading keyword produces a result set. Everything
// else goes through Exec and reports affected rows.
var queryKeywords = map[string]struct{}{
	"select":  {},
	"with":    {},
	"show":    {},
	"pragma":  {},
	"explain": {},
	"values":  {},
}

// Execute runs a caller supplied statement against a named database.
// Validation stops at pool existence: the statement text is trusted,
// which makes this the one surface where the identifier safety
// invariant does not hold. Callers guard it accordingly.
func (g *Engine) Execute(c context.Context, req RawRequest) (*RawResult, error) {
	qg := g.Load().(*engineState)

	c1, sp := qg.spanStart(c, "Raw Statement")
	defer sp.End()

	conn, err := qg.conn(req.DB)
	if err != nil {
		sp.Error(err)
		return nil, err
	}

	stmt := strings.TrimSpace(req.SQL)
	if stmt == "" {
		err := validationErrorf("empty statement")
		sp.Error(err)
		return nil, err
	}

	if sp.IsRecording() {
		sp.SetAttributesString(
			StringAttr{"db.name", conn.name},
			StringAttr{"db.statement", stmt},
		)
	}
	qg.debugLog(conn.name, stmt, req.Params)

	if isQueryStatement(stmt) {
		rows, err := conn.db.QueryContext(c1, stmt, req.Params...)
		if err != nil {
			sp.Error(err)
			return nil, executionError(conn.name, err)
		}
		defer rows.Close() //nolint:errcheck

		out, err := scanRows(rows)
		if err != nil {
			sp.Error(err)
			return nil, executionError(conn.name, err)
		}
		return &RawResult{RowCount: len(out), Rows: out}, nil
	}

	res, err := conn.db.ExecContext(c1, stmt, req.Params...)
	if err != nil {
		sp.Error(err)
		return nil, executionError(conn.name, err)
	}

	count := 0
	if n, err := res.RowsAffected(); err == nil {
		count = int(n)
	}
	return &RawResult{RowCount: count, Rows: []map[string]any{}}, nil
}

func isQueryStatement(stmt string) bool {
	kw := strings.ToLower(strings.TrimLeft(strings.Fields(stmt)[0], "("))
	_, ok := queryKeywords[kw]
	return ok
}
