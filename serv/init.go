package serv

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/querygate/querygate/core"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	logLevelNone int = iota
	logLevelInfo
	logLevelWarn
	logLevelError
	logLevelDebug
)

// initLogLevel initializes the log level
func initLogLevel(s *querygateService) {
	switch s.conf.LogLevel {
	case "debug":
		s.logLevel = logLevelDebug
	case "error":
		s.logLevel = logLevelError
	case "warn":
		s.logLevel = logLevelWarn
	case "info":
		s.logLevel = logLevelInfo
	default:
		s.logLevel = logLevelNone
	}
}

// initConfig initializes the configuration
func (s *querygateService) initConfig() error {
	c := s.conf

	hp := strings.SplitN(c.HostPort, ":", 2)

	if len(hp) == 2 {
		if c.Host != "" {
			hp[0] = c.Host
		}

		if c.Port != "" {
			hp[1] = c.Port
		}

		c.hostPort = fmt.Sprintf("%s:%s", hp[0], hp[1])
	}

	if c.hostPort == "" {
		c.hostPort = defaultHP
	}

	if c.AdminSecretKey != "" {
		s.asec = sha256.Sum256([]byte(c.AdminSecretKey))
	} else if c.Core.Production {
		s.log.Warn("no admin_secret_key set, admin endpoints are disabled")
	}

	return nil
}

// initFS initializes the file system
func (s *querygateService) initFS() error {
	basePath, err := s.basePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return err
	}

	s.fs = afero.NewBasePathFs(afero.NewOsFs(), basePath)
	return nil
}

// initEngine initializes the query engine
func (s *querygateService) initEngine() error {
	opts := []core.Option{
		core.OptionSetLogger(zap.NewStdLog(s.zlog)),
		core.OptionSetFS(s.fs),
	}

	if s.conf.EnableTracing {
		opts = append(opts, core.OptionSetTracer(core.NewOtelTracer()))
	}

	gate, err := core.New(&s.conf.Core, opts...)
	if err != nil {
		return err
	}

	s.gate = gate
	return nil
}

// basePath returns the base path
func (s *querygateService) basePath() (string, error) {
	if s.conf.ConfigPath == "" {
		if cp, err := os.Getwd(); err == nil {
			return filepath.Join(cp, "config"), nil
		} else {
			return "", err
		}
	}
	return s.conf.ConfigPath, nil
}
