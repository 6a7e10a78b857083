package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	statusConnected = "connected"
	statusError     = "error"
)

// Health pings every pool of the active state in parallel, each bounded
// by the ping timeout. Healthy is the AND across databases. Ping
// failures are logged with their cause; the report carries only the
// status so it can be served to unauthenticated callers.
func (g *Engine) Health(c context.Context) HealthReport {
	qg := g.Load().(*engineState)

	names := qg.schema.DatabaseNames()
	errs := make([]error, len(names))

	var eg errgroup.Group
	for i, name := range names {
		conn, err := qg.conn(name)
		if err != nil {
			errs[i] = err
			continue
		}
		eg.Go(func() error {
			c1, cancel := context.WithTimeout(c, qg.conf.PingTimeout)
			defer cancel()
			errs[i] = conn.db.PingContext(c1)
			return nil
		})
	}
	eg.Wait() //nolint:errcheck

	rep := HealthReport{
		Healthy:   true,
		Databases: make(map[string]string, len(names)),
	}
	for i, name := range names {
		if errs[i] != nil {
			qg.log.Printf("health %s: %s", name, errs[i])
			rep.Databases[name] = statusError
			rep.Healthy = false
			continue
		}
		rep.Databases[name] = statusConnected
	}
	return rep
}
