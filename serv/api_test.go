package serv

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/querygate/querygate/core"
	"github.com/querygate/querygate/serv/internal/util"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testSchemaDoc = `{
	"databases": {"main": {"type": "sqlite", "path": ":memory:"}},
	"tables": {
		"notes": {"db": "main", "columns": ["note_id", "body", "author_id"]},
		"authors": {"db": "main", "columns": ["author_id", "name"]}
	}
}`

// newTestService builds a service over an in-memory sqlite database
// and returns it with its fully wired route handler.
func newTestService(t *testing.T, conf *Config) (*HttpService, http.Handler) {
	t.Helper()

	if conf == nil {
		conf = &Config{}
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.json", []byte(testSchemaDoc), 0o600))

	zlog := util.NewLoggerWithOutput(true, zapcore.AddSync(io.Discard))

	s, err := newQueryGateService(conf, zlog, OptionSetFS(fs))
	require.NoError(t, err)
	t.Cleanup(func() { s.gate.Close() }) //nolint:errcheck

	s1 := &HttpService{}
	s1.Store(s)

	h, err := routesHandler(s1, chi.NewRouter())
	require.NoError(t, err)

	return s1, h
}

func seedNotes(t *testing.T, s1 *HttpService) {
	t.Helper()
	s := s1.Load().(*querygateService)

	c := context.Background()
	for _, stmt := range []core.RawRequest{
		{DB: "main", SQL: "CREATE TABLE notes (note_id INTEGER, body TEXT, author_id INTEGER)"},
		{DB: "main", SQL: "CREATE TABLE authors (author_id INTEGER, name TEXT)"},
		{DB: "main", SQL: "INSERT INTO notes (note_id, body, author_id) VALUES (?, ?, ?)", Params: []any{1, "first", 1}},
		{DB: "main", SQL: "INSERT INTO notes (note_id, body, author_id) VALUES (?, ?, ?)", Params: []any{2, "second", 2}},
		{DB: "main", SQL: "INSERT INTO authors (author_id, name) VALUES (?, ?)", Params: []any{1, "ada"}},
		{DB: "main", SQL: "INSERT INTO authors (author_id, name) VALUES (?, ?)", Params: []any{2, "lin"}},
	} {
		_, err := s.gate.Execute(c, stmt)
		require.NoError(t, err)
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQueryEndpoint(t *testing.T) {
	s1, h := newTestService(t, nil)
	seedNotes(t, s1)

	w := doRequest(t, h, http.MethodPost, routeQuery,
		`{"notes": {"select": ["body"], "note_id": 2}}`, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, serverName, w.Header().Get("Server"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"notes": [{"body": "second"}]}`, w.Body.String())
}

func TestQueryEndpointValidation(t *testing.T) {
	_, h := newTestService(t, nil)

	w := doRequest(t, h, http.MethodPost, routeQuery, `{"ghost": {}}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Contains(t, out["error"], "validation failed")
}

func TestQueryEndpointBadJSON(t *testing.T) {
	_, h := newTestService(t, nil)

	w := doRequest(t, h, http.MethodPost, routeQuery, "{not json", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestJoinEndpoint(t *testing.T) {
	s1, h := newTestService(t, nil)
	seedNotes(t, s1)

	w := doRequest(t, h, http.MethodPost, routeJoin, `{
		"mainTable": "notes",
		"mainSelect": ["note_id", "author_id"],
		"mainFilters": {"note_id": 1},
		"joins": [
			{"table": "authors", "localKey": "author_id", "foreignKey": "author_id", "select": ["author_id", "name"]}
		]
	}`, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[
		{"note_id": 1, "author_id": 1, "authors": [{"author_id": 1, "name": "ada"}]}
	]`, w.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestService(t, nil)

	for route, method := range map[string]string{
		routeQuery:  http.MethodGet,
		routeJoin:   http.MethodGet,
		routeRaw:    http.MethodGet,
		routeReload: http.MethodGet,
		routeSchema: http.MethodPost,
		routeStats:  http.MethodPost,
	} {
		w := doRequest(t, h, method, route, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, route)
	}
}

func TestRawEndpoint(t *testing.T) {
	_, h := newTestService(t, nil)

	w := doRequest(t, h, http.MethodPost, routeRaw,
		`{"db": "main", "sql": "CREATE TABLE scratch (id INTEGER)"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(t, h, http.MethodPost, routeRaw,
		`{"db": "main", "sql": "INSERT INTO scratch (id) VALUES (?)", "params": [7]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rowCount": 1, "rows": []}`, w.Body.String())

	w = doRequest(t, h, http.MethodPost, routeRaw,
		`{"db": "main", "sql": "SELECT id FROM scratch"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rowCount": 1, "rows": [{"id": 7}]}`, w.Body.String())

	// unknown database maps to 503
	w = doRequest(t, h, http.MethodPost, routeRaw,
		`{"db": "ghost", "sql": "SELECT 1"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminSecret(t *testing.T) {
	conf := &Config{}
	conf.AdminSecretKey = "s3cret"
	_, h := newTestService(t, conf)

	w := doRequest(t, h, http.MethodGet, routeSchema, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid admin secret")

	w = doRequest(t, h, http.MethodGet, routeSchema, "",
		map[string]string{adminSecretHeader: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, h, http.MethodGet, routeSchema, "",
		map[string]string{adminSecretHeader: "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notes")
}

func TestAdminDisabledInProduction(t *testing.T) {
	conf := &Config{}
	conf.Core.Production = true
	s1, h := newTestService(t, conf)
	seedNotes(t, s1)

	for _, route := range []string{routeRaw, routeReload} {
		w := doRequest(t, h, http.MethodPost, route, "{}", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route)
		assert.Contains(t, w.Body.String(), "admin endpoints disabled")
	}

	// the query surface stays open
	w := doRequest(t, h, http.MethodPost, routeQuery,
		`{"notes": {"select": ["body"], "note_id": 1}}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	_, h := newTestService(t, nil)

	w := doRequest(t, h, http.MethodGet, healthRoute, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"healthy": true, "databases": {"main": "connected"}}`, w.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	_, h := newTestService(t, nil)

	w := doRequest(t, h, http.MethodGet, routeStats, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Databases []struct {
			Name   string `json:"name"`
			Type   string `json:"type"`
			Tables int    `json:"tables"`
		} `json:"databases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Databases, 1)
	assert.Equal(t, "main", out.Databases[0].Name)
	assert.Equal(t, "sqlite", out.Databases[0].Type)
	assert.Equal(t, 2, out.Databases[0].Tables)
}

func TestReloadEndpointRejectsInvalidDocument(t *testing.T) {
	s1, h := newTestService(t, nil)
	seedNotes(t, s1)

	w := doRequest(t, h, http.MethodPost, routeReload, `{
		"databases": {"main": {"type": "sqlite", "path": ":memory:"}},
		"tables": {"notes": {"db": "ghost", "columns": ["note_id"]}}
	}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var out struct {
		Error      string `json:"error"`
		Violations []struct {
			Table  string `json:"table"`
			Reason string `json:"reason"`
		} `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Contains(t, out.Error, "reload rejected")
	require.Len(t, out.Violations, 1)
	assert.Equal(t, "notes", out.Violations[0].Table)
	assert.Contains(t, out.Violations[0].Reason, `undeclared database "ghost"`)

	// the active state survives a rejected reload
	w = doRequest(t, h, http.MethodPost, routeQuery,
		`{"notes": {"select": ["body"], "note_id": 1}}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"notes": [{"body": "first"}]}`, w.Body.String())
}

func TestReloadEndpointEmptyBodyRereadsFile(t *testing.T) {
	_, h := newTestService(t, nil)

	w := doRequest(t, h, http.MethodPost, routeReload, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"databases": ["main"], "tables": 2}`, w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	conf := &Config{}
	conf.RateLimiter = RateLimiter{Rate: 1, Bucket: 1, IPHeader: "X-Forwarded-For"}
	_, h := newTestService(t, conf)

	w := doRequest(t, h, http.MethodPost, routeQuery, `{"notes": {}}`, nil)
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)

	w = doRequest(t, h, http.MethodPost, routeQuery, `{"notes": {}}`, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too many requests")

	// a different client ip gets its own bucket
	w = doRequest(t, h, http.MethodPost, routeQuery, `{"notes": {}}`,
		map[string]string{"X-Forwarded-For": "10.0.0.9"})
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)

	// the health endpoint is never rate limited
	w = doRequest(t, h, http.MethodGet, healthRoute, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCacheControlHeader(t *testing.T) {
	conf := &Config{}
	conf.CacheControl = "public, max-age=30"
	s1, h := newTestService(t, conf)
	seedNotes(t, s1)

	w := doRequest(t, h, http.MethodPost, routeQuery,
		`{"notes": {"select": ["body"], "note_id": 1}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=30", w.Header().Get("Cache-Control"))
}

func TestPanicRecovery(t *testing.T) {
	s1, _ := newTestService(t, nil)

	h := apiHandler(s1, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := doRequest(t, h, http.MethodPost, routeQuery, "{}", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "internal error"}`, w.Body.String())
}
