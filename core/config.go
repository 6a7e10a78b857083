package core

import "time"

// Config is the engine configuration. Connection details live in the
// schema document; this only carries engine behavior and the pooling
// parameters applied uniformly to every database pool.
type Config struct {
	// Path to the schema document
	SchemaFile string `mapstructure:"schema_file" json:"schema_file" jsonschema:"title=Schema Document Path"`

	// When true, runs with production defaults
	Production bool `mapstructure:"production" json:"production" jsonschema:"title=Production Mode,default=false"`

	// Maximum relation nesting depth a request may ask for
	MaxDepth int `mapstructure:"max_depth" json:"max_depth" jsonschema:"title=Max Relation Depth,default=10"`

	// Database pooling parameters
	PoolSize        int           `mapstructure:"pool_size" json:"pool_size" jsonschema:"title=Max Idle Connections Per Pool"`
	MaxConnections  int           `mapstructure:"max_connections" json:"max_connections" jsonschema:"title=Max Open Connections Per Pool"`
	MaxConnIdleTime time.Duration `mapstructure:"max_connection_idle_time" json:"max_connection_idle_time" jsonschema:"title=Connection Idle Time"`
	MaxConnLifeTime time.Duration `mapstructure:"max_connection_life_time" json:"max_connection_life_time" jsonschema:"title=Connection Life Time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" jsonschema:"title=Connect Timeout"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout" json:"ping_timeout" jsonschema:"title=Ping Timeout"`
}

const (
	defaultPoolSize       = 10
	defaultMaxConnections = 50
	defaultMaxDepth       = 10
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

func (c *Config) setDefaults() {
	if c.SchemaFile == "" {
		c.SchemaFile = "schema.json"
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
}
