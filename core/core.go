package core

import (
	"context"
	"database/sql"
	_log "log"

	"github.com/spf13/afero"

	"github.com/querygate/querygate/core/internal/dialect"
	"github.com/querygate/querygate/core/internal/sdata"
)

// dbConn holds per-database state: the production pool and the dialect
// that renders statements for it.
type dbConn struct {
	name string
	db   *sql.DB
	di   dialect.Dialect
}

// engineState is one generation of the engine: a schema snapshot and
// the pools opened for it. A reload builds a complete replacement and
// swaps it in whole; in-flight requests keep the generation they
// loaded for their entire lifetime.
type engineState struct {
	conf   *Config
	log    *_log.Logger
	fs     afero.Fs
	trace  Tracer
	store  *sdata.Store
	schema *sdata.Schema
	dbs    map[string]*dbConn
	prod   bool
}

// conn returns the pool for a database id. The id comes from the
// request (raw gateway) or the schema; either way a miss is a caller
// visible condition, not a bug.
func (qg *engineState) conn(name string) (*dbConn, error) {
	c, ok := qg.dbs[name]
	if !ok {
		return nil, poolUnavailableError(name)
	}
	return c, nil
}

func (qg *engineState) spanStart(c context.Context, name string) (context.Context, Spaner) {
	return qg.trace.Start(c, name)
}

// debugLog prints executed statements in development mode.
func (qg *engineState) debugLog(db, stmt string, args []any) {
	if qg.prod {
		return
	}
	qg.log.Printf("sql %s: %s %v", db, stmt, args)
}

// fetch runs one generated statement and buffers its rows.
func (qg *engineState) fetch(c context.Context, conn *dbConn, stmt string, args []any) ([]map[string]any, error) {
	c1, sp := qg.spanStart(c, "Execute Statement")
	defer sp.End()

	if sp.IsRecording() {
		sp.SetAttributesString(
			StringAttr{"db.name", conn.name},
			StringAttr{"db.statement", stmt},
		)
	}
	qg.debugLog(conn.name, stmt, args)

	rows, err := conn.db.QueryContext(c1, stmt, args...)
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
	return out, nil
}
