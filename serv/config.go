package serv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/querygate/querygate/core"
	"github.com/querygate/querygate/serv/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

type Core = core.Config

// Configuration for the QueryGate service
type Config struct {
	// Configuration for the QueryGate engine core
	Core `mapstructure:",squash" jsonschema:"title=Engine Configuration"`

	// Configuration for the QueryGate Service
	Serv `mapstructure:",squash" jsonschema:"title=Service Configuration"`

	hostPort string
	viper    *viper.Viper
}

// Configuration for the QueryGate Service
type Serv struct {
	// Application name is used in log and debug messages
	AppName string `mapstructure:"app_name" jsonschema:"title=Application Name"`

	// The default path to find all configuration files and the schema document
	ConfigPath string `mapstructure:"config_path" jsonschema:"title=Config Path"`

	// Logging level must be one of debug, error, warn, info
	LogLevel string `mapstructure:"log_level" jsonschema:"title=Log Level,enum=debug,enum=error,enum=warn,enum=info" validate:"omitempty,oneof=none debug error warn info"`

	// Logging Format: "auto" (default, colored console in dev, JSON in production),
	// "json" (always JSON), or "simple" (always colored console)
	LogFormat string `mapstructure:"log_format" jsonschema:"title=Logging Format,enum=auto,enum=json,enum=simple" validate:"omitempty,oneof=auto json simple"`

	// The host and port the service runs on. Example localhost:8080
	HostPort string `mapstructure:"host_port" jsonschema:"title=Host and Port"`

	// Host to run the service on
	Host string `jsonschema:"title=Host"`

	// Port to run the service on
	Port string `jsonschema:"title=Port"`

	// Enables HTTP compression
	HTTPGZip bool `mapstructure:"http_compress" jsonschema:"title=Enable Compression,default=true"`

	// Sets the API rate limits
	RateLimiter RateLimiter `mapstructure:"rate_limiter" jsonschema:"title=Set API Rate Limiting"`

	// Enables the Server-Timing HTTP header
	ServerTiming bool `mapstructure:"server_timing" jsonschema:"title=Server Timing HTTP Header,default=true"`

	// Enable OpenTelemetry request tracing
	EnableTracing bool `mapstructure:"enable_tracing" jsonschema:"title=Enable Tracing,default=false"`

	// Enables reloading the engine when the schema document changes
	// on disk. Disabled in production
	WatchAndReload bool `mapstructure:"reload_on_schema_change" jsonschema:"title=Reload on Schema Change"`

	// Secret key used to control access to the admin endpoints. When
	// unset the admin endpoints are open in development mode and
	// refused in production mode
	AdminSecretKey string `mapstructure:"admin_secret_key" jsonschema:"title=Admin API Secret Key"`

	// Sets the HTTP CORS Access-Control-Allow-Origin header
	AllowedOrigins []string `mapstructure:"cors_allowed_origins" jsonschema:"title=HTTP CORS Allowed Origins"`

	// Sets the HTTP CORS Access-Control-Allow-Headers header
	AllowedHeaders []string `mapstructure:"cors_allowed_headers" jsonschema:"title=HTTP CORS Allowed Headers"`

	// Enables debug logs for CORS
	DebugCORS bool `mapstructure:"cors_debug" jsonschema:"title=Log CORS"`

	// Sets the HTTP Cache-Control header on query responses
	CacheControl string `mapstructure:"cache_control" jsonschema:"title=Enable Cache-Control"`

	// Configuration for the request assistant
	Assist Assist `mapstructure:"assist" jsonschema:"title=Request Assistant"`
}

// RateLimiter sets the API rate limits
type RateLimiter struct {
	// The number of events per second
	Rate float64 `jsonschema:"title=Connection Rate" validate:"gte=0"`

	// Bucket a burst of at most 'bucket' number of events
	Bucket int `jsonschema:"title=Bucket Size" validate:"gte=0"`

	// The header that contains the client ip
	IPHeader string `mapstructure:"ip_header" jsonschema:"title=IP From HTTP Header,example=X-Forwarded-For"`
}

// Assist configures the request assistant. It points the service at an
// OpenAI compatible chat completions API used to translate natural
// language into governed query requests. Translation only: the
// assistant endpoint never executes what it produces.
type Assist struct {
	// Base URL of an OpenAI compatible API. Example https://api.openai.com/v1
	BaseURL string `mapstructure:"base_url" jsonschema:"title=Assist API Base URL" validate:"omitempty,url"`

	// Bearer token sent to the assist API
	APIKey string `mapstructure:"api_key" jsonschema:"title=Assist API Key"`

	// Model name passed to the assist API
	Model string `jsonschema:"title=Assist Model"`

	// Extra instructions appended to the generated system prompt
	Prompt string `jsonschema:"title=Additional Instructions"`
}

// ReadInConfig function reads in the config file for the environment specified in the GO_ENV
// environment variable. This is the best way to create a new QueryGate config.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but it also takes a filesystem as an argument
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

// readInConfig function reads in the config file for the environment specified in the GO_ENV
func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	viper := newViper(cp, filepath.Base(configFile))

	if fs != nil {
		viper.SetFs(fs)
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := viper.GetString("inherits"); pcf != "" {
		cf := viper.ConfigFileUsed()
		viper = newViper(cp, pcf)
		if fs != nil {
			viper.SetFs(fs)
		}

		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}

		if value := viper.GetString("inherits"); value != "" {
			return nil, fmt.Errorf("inherited config '%s' cannot itself inherit '%s'", pcf, value)
		}

		viper.SetConfigFile(cf)

		if err := viper.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "QG_") {
			kv := strings.SplitN(e, "=", 2)
			util.SetKeyValue(viper, kv[0], kv[1])
		}
	}

	config := &Config{viper: viper}
	config.ConfigPath = cp

	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// NewConfig function creates a new QueryGate configuration from the provided config string
func NewConfig(config, format string) (*Config, error) {
	if format == "" {
		format = "yaml"
	}

	viper := newViperWithDefaults()
	viper.SetConfigType(format)

	if err := viper.ReadConfig(strings.NewReader(config)); err != nil {
		return nil, err
	}

	c := &Config{viper: viper}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config, %v", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// newViperWithDefaults returns a new viper instance with the default settings
func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("host_port", "0.0.0.0:8080")
	vi.SetDefault("http_compress", true)
	vi.SetDefault("server_timing", true)
	vi.SetDefault("enable_tracing", false)
	vi.SetDefault("reload_on_schema_change", true)

	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")

	vi.SetDefault("schema_file", "schema.json")
	vi.SetDefault("pool_size", 10)
	vi.SetDefault("max_connections", 50)

	vi.SetDefault("env", "development")

	vi.BindEnv("env", "GO_ENV") //nolint:errcheck
	vi.BindEnv("host", "HOST")  //nolint:errcheck
	vi.BindEnv("port", "PORT")  //nolint:errcheck

	// The generic QG_ env override maps underscores to nesting dots
	// which would tear these keys apart, so they get explicit binds.
	vi.BindEnv("admin_secret_key", "QG_ADMIN_SECRET_KEY") //nolint:errcheck
	vi.BindEnv("assist.api_key", "QG_ASSIST_API_KEY")     //nolint:errcheck

	vi.SetDefault("assist.model", "gpt-4o-mini")

	return vi
}

// newViper returns a new viper instance with the default settings
func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))

	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}

	return vi
}

// validate checks field values that viper cannot, like the log level
// and format enums.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config, %v", err)
	}
	return nil
}

// AbsolutePath returns the absolute path of the file
func (c *Config) AbsolutePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ConfigPath, p)
}

// rateLimiterEnable returns true if the rate limiter is enabled
func (c *Config) rateLimiterEnable() bool {
	return c.RateLimiter.Rate > 0 && c.RateLimiter.Bucket > 0
}

// assistEnabled returns true if the request assistant is configured
func (c *Config) assistEnabled() bool {
	return c.Assist.BaseURL != ""
}

// ShouldUseJSONLogs returns true if logs should be in JSON format.
// Returns true if log_format is "json" OR if log_format is "auto" and production mode is enabled.
// Returns false otherwise (colored console output for dev mode).
func (c *Config) ShouldUseJSONLogs() bool {
	if c.LogFormat == "json" {
		return true
	}
	if c.LogFormat == "auto" && c.Core.Production {
		return true
	}
	return false
}

// ConfigSchema returns the JSON Schema describing config files, for
// editor validation and doc generation. Property names come from the
// mapstructure tags so they match the YAML keys viper reads.
func ConfigSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		FieldNameTag:   "mapstructure",
		KeyNamer:       strings.ToLower,
		ExpandedStruct: true,
	}
	return json.MarshalIndent(r.Reflect(&Config{}), "", "  ")
}

// GetConfigName returns the name of the configuration
func GetConfigName() string {
	goEnv := strings.TrimSpace(strings.ToLower(os.Getenv("GO_ENV")))

	switch goEnv {
	case "production", "prod":
		return "prod"

	case "staging", "stage":
		return "stage"

	case "testing", "test":
		return "test"

	case "development", "dev", "":
		return "dev"

	default:
		return goEnv
	}
}
