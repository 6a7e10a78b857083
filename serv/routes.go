package serv

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/xid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	routeQuery  = "/api/v1/query"
	routeJoin   = "/api/v1/join"
	routeRaw    = "/api/v1/raw"
	routeReload = "/api/v1/reload"
	routeSchema = "/api/v1/schema"
	routeStats  = "/api/v1/stats"
	routeAssist = "/api/v1/assist"
	healthRoute = "/health"
)

type Mux interface {
	Handle(string, http.Handler)
	ServeHTTP(http.ResponseWriter, *http.Request)
}

// routesHandler is the main handler for all routes
func routesHandler(s1 *HttpService, mux Mux) (http.Handler, error) {
	s := s1.Load().(*querygateService)

	// Healthcheck API
	mux.Handle(healthRoute, healthCheckHandler(s1))

	// Request APIs
	mux.Handle(routeQuery, apiHandler(s1, queryHandler(s1)))
	mux.Handle(routeJoin, apiHandler(s1, joinHandler(s1)))

	if s.conf.assistEnabled() {
		mux.Handle(routeAssist, apiHandler(s1, assistHandler(s1)))
	}

	// Admin APIs
	mux.Handle(routeRaw, apiHandler(s1, adminOnly(s1, rawHandler(s1))))
	mux.Handle(routeReload, apiHandler(s1, adminOnly(s1, reloadHandler(s1))))
	mux.Handle(routeSchema, apiHandler(s1, adminOnly(s1, schemaHandler(s1))))
	mux.Handle(routeStats, apiHandler(s1, adminOnly(s1, statsHandler(s1))))

	return setServerHeader(mux), nil
}

// apiHandler wraps an API handler with the shared middleware: rate
// limiting, CORS, compression, tracing, request logging and panic
// recovery. The innermost wrap runs first on the way out so the logger
// observes the full request.
func apiHandler(s1 *HttpService, h http.Handler) http.Handler {
	s := s1.Load().(*querygateService)

	if s.conf.rateLimiterEnable() {
		h = rateLimiterHandler(s1, h)
	}

	if len(s.conf.AllowedOrigins) != 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   s.conf.AllowedOrigins,
			AllowedHeaders:   s.conf.AllowedHeaders,
			AllowCredentials: true,
			Debug:            s.conf.DebugCORS,
		})
		h = c.Handler(h)
	}

	if s.conf.CacheControl != "" {
		h = cacheControlHandler(s.conf.CacheControl, h)
	}

	if s.conf.ServerTiming {
		h = serverTimingHandler(h)
	}

	if s.conf.HTTPGZip {
		h = gzhttp.GzipHandler(h)
	}

	if s.conf.EnableTracing {
		h = otelhttp.NewHandler(h, "api")
	}

	return recoveryHandler(s1, requestLogger(s1, h))
}

// recoveryHandler answers a handler panic with a generic 500 and logs
// the stack. http.ErrAbortHandler is re-raised untouched.
func recoveryHandler(s1 *HttpService, h http.Handler) http.Handler {
	s := s1.Load().(*querygateService)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.zlog.Error("handler panic",
				zap.Any("error", rec),
				zap.String("path", r.URL.Path),
				zap.Stack("stack"))
			writeJSONError(w, http.StatusInternalServerError, "internal error")
		}()
		h.ServeHTTP(w, r)
	})
}

// rateLimiterHandler enforces the configured request rate per client.
// Clients are keyed by the configured IP header when set, else by the
// connection address.
func rateLimiterHandler(s1 *HttpService, h http.Handler) http.Handler {
	s := s1.Load().(*querygateService)

	var mu sync.Mutex
	clients := make(map[string]*rate.Limiter)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(s.conf, r)

		mu.Lock()
		lim, ok := clients[ip]
		if !ok {
			lim = rate.NewLimiter(
				rate.Limit(s.conf.RateLimiter.Rate),
				s.conf.RateLimiter.Bucket)
			clients[ip] = lim
		}
		mu.Unlock()

		if !lim.Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		h.ServeHTTP(w, r)
	})
}

func clientIP(conf *Config, r *http.Request) string {
	if hn := conf.RateLimiter.IPHeader; hn != "" {
		if ip := r.Header.Get(hn); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// cacheControlHandler sets the configured Cache-Control header
func cacheControlHandler(value string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headers.CacheControl, value)
		h.ServeHTTP(w, r)
	})
}

// serverTimingHandler reports handler time in the Server-Timing
// header. Handlers buffer their response and write once, so the time
// to first byte covers the whole request.
func serverTimingHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(&timedWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

type timedWriter struct {
	http.ResponseWriter
	start time.Time
	wrote bool
}

func (w *timedWriter) WriteHeader(status int) {
	w.setTiming()
	w.ResponseWriter.WriteHeader(status)
}

func (w *timedWriter) Write(b []byte) (int, error) {
	w.setTiming()
	return w.ResponseWriter.Write(b)
}

func (w *timedWriter) setTiming() {
	if w.wrote {
		return
	}
	w.wrote = true
	d := float64(time.Since(w.start)) / float64(time.Millisecond)
	w.Header().Set("Server-Timing", fmt.Sprintf("total;dur=%.1f", d))
}

// requestLogger tags each request with an id and logs it at debug
// level
func requestLogger(s1 *HttpService, h http.Handler) http.Handler {
	s := s1.Load().(*querygateService)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headers.XRequestID)
		if rid == "" {
			rid = xid.New().String()
		}
		w.Header().Set(headers.XRequestID, rid)

		start := time.Now()
		h.ServeHTTP(w, r)

		if s.logLevel >= logLevelDebug {
			s.zlog.Debug("http request",
				zap.String("request-id", rid),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)))
		}
	})
}
