package serv

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-http-utils/headers"
	"github.com/querygate/querygate/core"
	"github.com/querygate/querygate/serv/internal/util"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version string

const (
	serverName = "QueryGate"
	defaultHP  = "0.0.0.0:8080"
)

// HttpService is a thread-safe container for the service state.
// Handlers load the state once per request; the engine inside swaps
// its own state on schema reload without restarting the server.
type HttpService struct {
	atomic.Value
}

type querygateService struct {
	conf     *Config
	zlog     *zap.Logger
	log      *zap.SugaredLogger
	logLevel int
	fs       afero.Fs
	gate     *core.Engine
	srv      *http.Server
	asec     [sha256.Size]byte
}

// Option function type
type Option func(*querygateService) error

// NewQueryGateService a new QueryGate service
func NewQueryGateService(conf *Config, options ...Option) (*HttpService, error) {
	zlog := util.NewLogger(conf.ShouldUseJSONLogs())

	s, err := newQueryGateService(conf, zlog, options...)
	if err != nil {
		return nil, err
	}

	s1 := &HttpService{}
	s1.Store(s)

	if s.conf.WatchAndReload {
		initSchemaWatcher(s1)
	}
	return s1, nil
}

func newQueryGateService(conf *Config, zlog *zap.Logger, options ...Option) (*querygateService, error) {
	if conf == nil {
		conf = &Config{}
	}

	s := &querygateService{
		conf: conf,
		zlog: zlog,
		log:  zlog.Sugar(),
	}

	initLogLevel(s)

	if err := s.initConfig(); err != nil {
		return nil, err
	}

	for _, op := range options {
		if err := op(s); err != nil {
			return nil, err
		}
	}

	if s.fs == nil {
		if err := s.initFS(); err != nil {
			return nil, err
		}
	}

	if err := s.initEngine(); err != nil {
		return nil, err
	}

	return s, nil
}

// OptionSetFS sets the filesystem the schema document is read from
// and persisted to
func OptionSetFS(fs afero.Fs) Option {
	return func(s *querygateService) error {
		s.fs = fs
		return nil
	}
}

// OptionSetZapLogger replaces the service logger
func OptionSetZapLogger(zlog *zap.Logger) Option {
	return func(s *querygateService) error {
		s.zlog = zlog
		s.log = zlog.Sugar()
		return nil
	}
}

// Initialize the watcher for the schema document
func initSchemaWatcher(s1 *HttpService) {
	s := s1.Load().(*querygateService)
	if s.conf.Core.Production {
		return
	}

	go func() {
		err := startSchemaWatcher(s1)
		if err != nil {
			s.log.Fatalf("error in schema watcher: %s", err)
		}
	}()
}

// Attach registers the QueryGate API on an existing mux
func (s1 *HttpService) Attach(mux Mux) error {
	_, err := routesHandler(s1, mux)
	return err
}

// Start the service listening on the configured host and port
func (s1 *HttpService) Start() error {
	startHTTP(s1)
	return nil
}

// Start the HTTP server
func startHTTP(s1 *HttpService) {
	s := s1.Load().(*querygateService)

	r := chi.NewRouter()
	routes, err := routesHandler(s1, r)
	if err != nil {
		s.log.Fatalf("error setting up routes: %s", err)
	}

	s.srv = &http.Server{
		Addr:              s.conf.hostPort,
		Handler:           routes,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown signal received")
		}
		close(idleConnsClosed)
	}()

	s.srv.RegisterOnShutdown(func() {
		if err := s.gate.Close(); err != nil {
			s.log.Warnf("error closing database pools: %s", err)
		}
		s.log.Info("shutdown complete")
	})

	ver := version
	if ver == "" {
		ver = "not-set"
	}

	fields := []zapcore.Field{
		zap.String("version", ver),
		zap.String("host-port", s.conf.hostPort),
		zap.String("app-name", s.conf.AppName),
		zap.String("env", os.Getenv("GO_ENV")),
		zap.Bool("production", s.conf.Core.Production),
	}

	s.zlog.Info("QueryGate started", fields...)
	printDevModeInfo(s)

	l, err := net.Listen("tcp", s.conf.hostPort)
	if err != nil {
		s.log.Fatalf("failed to init port: %s", err)
	}

	if err := s.srv.Serve(l); err != http.ErrServerClosed {
		s.log.Fatalf("failed to start: %s", err)
	}
	<-idleConnsClosed
}

// Set the server header
func setServerHeader(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headers.Server, serverName)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// printDevModeInfo prints useful development information on startup
func printDevModeInfo(s *querygateService) {
	if s.conf.Core.Production {
		return
	}

	// Convert 0.0.0.0 to localhost for display
	hostPort := s.conf.hostPort
	displayHost := hostPort
	if strings.HasPrefix(hostPort, "0.0.0.0:") {
		displayHost = "localhost" + hostPort[7:]
	}

	fmt.Println()
	fmt.Println("Development Server URLs")
	fmt.Println("───────────────────────")
	fmt.Printf("  Query API:   http://%s%s\n", displayHost, routeQuery)
	fmt.Printf("  Join API:    http://%s%s\n", displayHost, routeJoin)
	fmt.Printf("  Health:      http://%s%s\n", displayHost, healthRoute)
	if s.conf.assistEnabled() {
		fmt.Printf("  Assist:      http://%s%s\n", displayHost, routeAssist)
	}
	fmt.Println()
}
