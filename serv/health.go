package serv

import (
	"net/http"

	"github.com/go-http-utils/headers"
	"go.uber.org/zap"
)

// healthCheckHandler pings every configured database and reports
// per-database status. Unhealthy means at least one database failed
// its ping.
// GET /health
func healthCheckHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*querygateService)

		report := s.gate.Health(r.Context())

		w.Header().Set(headers.ContentType, jsonContentType)
		if !report.Healthy {
			s.zlog.Error("healthcheck failed", zap.Any("databases", report.Databases))
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeJSON(w, report)
	})
}
