package util

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	prettyconsole "github.com/thessem/zap-prettyconsole"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// shortTimeEncoder encodes time as HH:MM:SS for cleaner console output
func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// NewLogger creates a new zap logger instance
// json - if true logs are in json format
func NewLogger(json bool) *zap.Logger {
	return NewLoggerWithOutput(json, os.Stdout)
}

// NewLoggerWithOutput creates a new zap logger writing to output,
// used by tests to capture log lines
func NewLoggerWithOutput(json bool, output zapcore.WriteSyncer) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core

	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), output, zap.DebugLevel)
	} else {
		// prettyconsole for human-readable key=value output
		pcfg := prettyconsole.NewEncoderConfig()
		pcfg.EncodeTime = shortTimeEncoder
		core = zapcore.NewCore(prettyconsole.NewEncoder(pcfg), output, zap.DebugLevel)
	}
	return zap.New(core)
}

// SetKeyValue sets an environment variable override on the viper
// instance. The prefix up to the first underscore is dropped and the
// rest lowercased with underscores as nesting dots, so
// QG_DATABASE_HOST becomes database.host.
func SetKeyValue(vi *viper.Viper, key, value string) {
	if i := strings.Index(key, "_"); i != -1 {
		key = key[i+1:]
	}
	vi.Set(strings.ToLower(strings.ReplaceAll(key, "_", ".")), value)
}
