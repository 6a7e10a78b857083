// Package core implements the schema governed query engine: request
// validation against a versioned schema document, compilation of
// filter/sort/paging options into parameterized SQL, recursive
// resolution of relations across independently configured databases,
// in-memory cross-database joins, and atomic schema+pool reloads.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	_log "log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/querygate/querygate/core/internal/sdata"
)

// Engine is the public handle. It holds the active engine state behind
// an atomic value; requests load one consistent snapshot and reloads
// swap in a fully built replacement.
type Engine struct {
	atomic.Value
	reloadMu sync.Mutex
}

type Option func(*engineState) error

// New creates the engine: loads the schema document, validates it,
// opens one pool per declared database and installs the first state.
// Unreachable databases are logged, not fatal; statements against them
// fail until they come back.
func New(conf *Config, options ...Option) (*Engine, error) {
	g := &Engine{}
	if err := g.newEngine(conf, options...); err != nil {
		return nil, err
	}

	rep := g.Health(context.Background())
	if !rep.Healthy {
		qg := g.Load().(*engineState)
		for db, status := range rep.Databases {
			if status != statusConnected {
				qg.log.Printf("database %s: not reachable at startup", db)
			}
		}
	}
	return g, nil
}

func (g *Engine) newEngine(conf *Config, options ...Option) error {
	if conf == nil {
		conf = &Config{}
	}
	conf.setDefaults()

	qg := &engineState{
		conf:  conf,
		log:   _log.New(os.Stdout, "", 0),
		fs:    afero.NewOsFs(),
		trace: &tracer{},
		prod:  conf.Production,
	}

	for _, op := range options {
		if err := op(qg); err != nil {
			return err
		}
	}

	qg.store = sdata.NewStore(qg.fs, conf.SchemaFile)

	s, _, err := qg.store.Load()
	if err != nil {
		return err
	}
	if vs := s.Validate(); len(vs) != 0 {
		return schemaViolationsError(vs)
	}
	qg.schema = s

	dbs, err := openAll(conf, s)
	if err != nil {
		return err
	}
	qg.dbs = dbs

	g.Store(qg)
	return nil
}

// OptionSetLogger sets the engine logger. Pair with zap.NewStdLog to
// route engine output through a structured logger.
func OptionSetLogger(l *_log.Logger) Option {
	return func(qg *engineState) error {
		qg.log = l
		return nil
	}
}

// OptionSetFS sets the filesystem the schema store reads and writes.
func OptionSetFS(fs afero.Fs) Option {
	return func(qg *engineState) error {
		qg.fs = fs
		return nil
	}
}

// OptionSetTracer sets the tracer used to span requests.
func OptionSetTracer(t Tracer) Option {
	return func(qg *engineState) error {
		qg.trace = t
		return nil
	}
}

// Close tears down the active pools. The engine is unusable afterward.
func (g *Engine) Close() error {
	qg := g.Load().(*engineState)
	closeAll(qg.dbs)
	return nil
}

// QueryRequest maps table ids to their query options. Reserved option
// keys are select, relations, orderBy, limit, offset and groupBy;
// every other key filters on the column of the same name.
type QueryRequest map[string]map[string]any

// QueryResult holds, per requested table, the fetched rows with every
// resolved relation attached under its relation name.
type QueryResult map[string][]map[string]any

// JoinRequest fetches a main row set and annotates each row with
// related row lists, joined in memory so the tables may live on
// different databases.
type JoinRequest struct {
	MainTable   string         `json:"mainTable"`
	MainSelect  []string       `json:"mainSelect,omitempty"`
	MainFilters map[string]any `json:"mainFilters,omitempty"`
	Joins       []JoinSpec     `json:"joins"`
}

// JoinSpec declares one join: rows of Table whose ForeignKey column
// matches the main row's LocalKey value, attached under the table name.
type JoinSpec struct {
	Table      string         `json:"table"`
	Select     []string       `json:"select,omitempty"`
	LocalKey   string         `json:"localKey"`
	ForeignKey string         `json:"foreignKey"`
	Filters    map[string]any `json:"filters,omitempty"`
}

type JoinResult []map[string]any

// RawRequest executes a caller supplied statement against a named
// database. Validation stops at pool existence; this surface trusts
// the caller.
type RawRequest struct {
	DB     string `json:"db"`
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

type RawResult struct {
	RowCount int              `json:"rowCount"`
	Rows     []map[string]any `json:"rows"`
}

// ReloadResult reports what a successful reload activated.
type ReloadResult struct {
	Databases []string `json:"databases"`
	Tables    int      `json:"tables"`
}

// HealthReport carries per-database connectivity and the AND across
// all of them.
type HealthReport struct {
	Healthy   bool              `json:"healthy"`
	Databases map[string]string `json:"databases"`
}

// Schema returns the active schema document with credentials masked.
func (g *Engine) Schema() (json.RawMessage, error) {
	qg := g.Load().(*engineState)
	return json.MarshalIndent(qg.schema.Masked(), "", "  ")
}

// ValidateSchema parses and validates a schema document without
// touching any engine state. It reports every violation found, not
// just the first.
func ValidateSchema(doc []byte) error {
	var s *sdata.Schema
	var err error

	if bytes.HasPrefix(bytes.TrimSpace(doc), []byte("{")) {
		s, err = sdata.Parse(doc)
	} else {
		s, err = sdata.ParseYAML(doc)
	}
	if err != nil {
		return validationError(err)
	}
	if vs := s.Validate(); len(vs) != 0 {
		return schemaViolationsError(vs)
	}
	return nil
}

// DatabaseStats describes one configured database and its pool.
type DatabaseStats struct {
	Name   string     `json:"name"`
	Type   string     `json:"type"`
	Tables int        `json:"tables"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

// PoolStats mirrors sql.DBStats for one pool.
type PoolStats struct {
	MaxOpen           int    `json:"maxOpen"`
	Open              int    `json:"open"`
	InUse             int    `json:"inUse"`
	Idle              int    `json:"idle"`
	WaitCount         int64  `json:"waitCount"`
	WaitDuration      string `json:"waitDuration"`
	MaxIdleClosed     int64  `json:"maxIdleClosed"`
	MaxLifetimeClosed int64  `json:"maxLifetimeClosed"`
}

// DatabaseStats returns stats for every configured database.
func (g *Engine) DatabaseStats() []DatabaseStats {
	qg := g.Load().(*engineState)

	counts := make(map[string]int, len(qg.dbs))
	for _, t := range qg.schema.Tables {
		counts[t.DB]++
	}

	stats := make([]DatabaseStats, 0, len(qg.dbs))
	for _, name := range qg.schema.DatabaseNames() {
		ds := DatabaseStats{
			Name:   name,
			Type:   qg.schema.Databases[name].Type,
			Tables: counts[name],
		}
		if conn, ok := qg.dbs[name]; ok {
			s := conn.db.Stats()
			ds.Pool = &PoolStats{
				MaxOpen:           s.MaxOpenConnections,
				Open:              s.OpenConnections,
				InUse:             s.InUse,
				Idle:              s.Idle,
				WaitCount:         s.WaitCount,
				WaitDuration:      s.WaitDuration.String(),
				MaxIdleClosed:     s.MaxIdleClosed,
				MaxLifetimeClosed: s.MaxLifetimeClosed,
			}
		}
		stats = append(stats, ds)
	}
	return stats
}
