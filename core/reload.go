package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/querygate/querygate/core/internal/sdata"
)

// Reload replaces the active schema and every connection pool with
// state built from doc. A nil or empty doc re-reads the schema file,
// which is how the file watcher triggers a reload.
//
// The replacement is all or nothing: the document is parsed and
// validated, every declared database is probed on a trial connection,
// and only then is the document persisted, the production pools
// opened, and the state swapped in a single store. Any failure leaves
// the previous schema and pools untouched. Reloads are serialized;
// concurrent calls queue and run against the winner's state.
//
// Requests that loaded the previous state before the swap fail on
// their closed pool and surface ErrPoolUnavailable.
func (g *Engine) Reload(c context.Context, doc []byte) (*ReloadResult, error) {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	qg := g.Load().(*engineState)

	c1, sp := qg.spanStart(c, "Schema Reload")
	defer sp.End()

	var s *sdata.Schema
	var err error
	persist := len(doc) != 0

	if persist {
		if qg.store.Encrypted() {
			err = &ReloadError{cause: validationErrorf(
				"schema store %s is encrypted, replace the document out of band and reload with an empty body",
				qg.store.Path())}
			sp.Error(err)
			return nil, err
		}
		s, err = qg.store.Parse(doc)
	} else {
		s, doc, err = qg.store.Load()
	}
	if err != nil {
		err = &ReloadError{cause: err}
		sp.Error(err)
		return nil, err
	}

	if vs := s.Validate(); len(vs) != 0 {
		err := &ReloadError{Violations: vs}
		sp.Error(err)
		return nil, err
	}

	if failed := probeAll(c1, qg.conf, s); len(failed) != 0 {
		err := &ReloadError{Failed: failed}
		sp.Error(err)
		return nil, err
	}

	if persist {
		if err := qg.store.Save(doc); err != nil {
			err := &ReloadError{cause: err}
			sp.Error(err)
			return nil, err
		}
	}

	dbs, err := openAll(qg.conf, s)
	if err != nil {
		err = &ReloadError{cause: err}
		sp.Error(err)
		return nil, err
	}

	ns := &engineState{
		conf:   qg.conf,
		log:    qg.log,
		fs:     qg.fs,
		trace:  qg.trace,
		store:  qg.store,
		schema: s,
		dbs:    dbs,
		prod:   qg.prod,
	}
	g.Store(ns)

	// Old pools close only after the swap so no request ever sees a
	// torn-down pool through a current state.
	closeAll(qg.dbs)

	qg.log.Printf("schema reloaded: %d databases, %d tables", len(s.Databases), len(s.Tables))
	return &ReloadResult{Databases: s.DatabaseNames(), Tables: len(s.Tables)}, nil
}

// probeAll test-connects every database of a candidate schema in
// parallel on single-connection trial pools. It reports every failing
// database, not just the first, so a rejected reload names them all.
func probeAll(c context.Context, conf *Config, s *sdata.Schema) map[string]string {
	names := s.DatabaseNames()
	errs := make([]error, len(names))

	var eg errgroup.Group
	for i, name := range names {
		eg.Go(func() error {
			errs[i] = probe(c, conf, s.Databases[name])
			return nil
		})
	}
	eg.Wait() //nolint:errcheck

	failed := make(map[string]string)
	for i, name := range names {
		if errs[i] != nil {
			failed[name] = errs[i].Error()
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return failed
}
