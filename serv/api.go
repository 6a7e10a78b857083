package serv

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-http-utils/headers"
	"github.com/querygate/querygate/core"
)

const (
	// Header carrying the admin secret for the admin endpoints
	adminSecretHeader = "X-Admin-Secret"

	// Request documents are small; anything larger is rejected
	maxRequestBytes = 1 << 20
)

const jsonContentType = "application/json"

// writeJSON encodes data as JSON and writes it to the response,
// handling errors
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response with proper header ordering
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set(headers.ContentType, jsonContentType)
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": message})
}

// writeEngineError maps engine errors onto HTTP status codes. Requests
// rejected before anything executed map to 400, missing pools to 503
// and statement failures to 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrReloadRejected):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrPoolUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// readBody reads the request body capped at maxRequestBytes
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close() //nolint:errcheck
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
}

// adminOnly guards a handler with the admin secret. With no secret
// configured the endpoints stay open in development mode and are
// refused in production mode.
func adminOnly(s1 *HttpService, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := s1.Load().(*querygateService)

		if s.conf.AdminSecretKey == "" {
			if s.conf.Core.Production {
				writeJSONError(w, http.StatusUnauthorized,
					"admin endpoints disabled, no admin_secret_key set")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		sec := sha256.Sum256([]byte(r.Header.Get(adminSecretHeader)))
		if subtle.ConstantTimeCompare(sec[:], s.asec[:]) != 1 {
			writeJSONError(w, http.StatusUnauthorized, "invalid admin secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// queryHandler resolves a governed query request
// POST /api/v1/query
func queryHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		body, err := readBody(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req core.QueryRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		res, err := s.gate.Query(r.Context(), req)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set(headers.ContentType, jsonContentType)
		writeJSON(w, res)
	})
}

// joinHandler resolves a cross-database join request
// POST /api/v1/join
func joinHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		body, err := readBody(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req core.JoinRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		res, err := s.gate.Join(r.Context(), req)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set(headers.ContentType, jsonContentType)
		writeJSON(w, res)
	})
}

// rawHandler executes a caller supplied statement against one database
// POST /api/v1/raw
func rawHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		body, err := readBody(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req core.RawRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		res, err := s.gate.Execute(r.Context(), req)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set(headers.ContentType, jsonContentType)
		writeJSON(w, res)
	})
}

// reloadHandler validates a new schema document and swaps the engine
// onto it. An empty body re-reads the document from disk.
// POST /api/v1/reload
func reloadHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		doc, err := readBody(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := s.gate.Reload(r.Context(), doc)
		if err != nil {
			var re *core.ReloadError
			if errors.As(err, &re) {
				w.Header().Set(headers.ContentType, jsonContentType)
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(w, map[string]interface{}{
					"error":      re.Error(),
					"violations": re.Violations,
					"failed":     re.Failed,
				})
				return
			}
			writeEngineError(w, err)
			return
		}

		s.log.Infof("schema reloaded: %d tables across %d databases",
			res.Tables, len(res.Databases))

		w.Header().Set(headers.ContentType, jsonContentType)
		writeJSON(w, res)
	})
}

// schemaHandler returns the active schema document with credentials
// masked
// GET /api/v1/schema
func schemaHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		doc, err := s.gate.Schema()
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set(headers.ContentType, jsonContentType)
		w.Write(doc) //nolint:errcheck
	})
}

// statsHandler returns per-database table counts and pool stats
// GET /api/v1/stats
func statsHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := s1.Load().(*querygateService)

		w.Header().Set(headers.ContentType, jsonContentType)
		writeJSON(w, map[string]interface{}{
			"databases": s.gate.DatabaseStats(),
		})
	})
}
