// Package cmd provides the QueryGate command line interface
package cmd

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/querygate/querygate/serv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	conf  *serv.Config
	cpath string
)

// Cmd is the entry point for the CLI
func Cmd() {
	log = newLogger(false).Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "querygate",
		Short: BuildDetails(),
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	// Add --config as an alias for --path
	rootCmd.PersistentFlags().StringVar(&cpath,
		"config", "./config", "alias for --path")
	rootCmd.PersistentFlags().MarkHidden("config") //nolint:errcheck

	rootCmd.AddCommand(newCmd())
	rootCmd.AddCommand(servCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(confCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

// setup is a helper function to read the config file
func setup(cpath string) {
	if conf != nil {
		return
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		log.Fatal(err)
	}

	cn := serv.GetConfigName()

	// Auto-create the config directory with a default config and schema
	// only if the directory itself does not exist. If the directory is
	// already present we let ReadInConfig report any missing file errors.
	if _, err := os.Stat(cp); os.IsNotExist(err) {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatal(err)
		}
		appNameSlug := strings.ToLower(filepath.Base(cwd))
		en := cases.Title(language.English)
		appName := en.String(appNameSlug)

		if err := scaffoldConfig(cp, cn, appName); err != nil {
			log.Fatalf("Failed to create default config: %s", err)
		}
		log.Infof("Created default config in: %s", cp)
	}

	if conf, err = serv.ReadInConfig(path.Join(cp, cn)); err != nil {
		log.Fatal(err)
	}
}

// newLogger creates a new logger
func newLogger(json bool) *zap.Logger {
	return newLoggerWithOutput(json, os.Stdout)
}

// newLoggerWithOutput creates a new logger with a custom output
func newLoggerWithOutput(json bool, output zapcore.WriteSyncer) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core

	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), output, zap.DebugLevel)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), output, zap.DebugLevel)
	}
	return zap.New(core)
}
