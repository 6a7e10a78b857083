package serv

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	c, err := NewConfig(`
app_name: clinic gateway
schema_file: clinic.json
max_depth: 6
pool_size: 4
connect_timeout: 2s
rate_limiter:
  rate: 10
  bucket: 20
  ip_header: X-Forwarded-For
assist:
  base_url: https://api.openai.com/v1
  api_key: sk-test
`, "yaml")
	require.NoError(t, err)

	assert.Equal(t, "clinic gateway", c.AppName)
	assert.Equal(t, "clinic.json", c.SchemaFile)
	assert.Equal(t, 6, c.MaxDepth)
	assert.Equal(t, 4, c.PoolSize)
	assert.Equal(t, 2*time.Second, c.ConnectTimeout)
	assert.Equal(t, "X-Forwarded-For", c.RateLimiter.IPHeader)
	assert.True(t, c.rateLimiterEnable())
	assert.True(t, c.assistEnabled())

	// defaults fill what the document leaves out
	assert.Equal(t, "0.0.0.0:8080", c.HostPort)
	assert.Equal(t, "info", c.LogLevel)
	assert.True(t, c.HTTPGZip)
	assert.True(t, c.WatchAndReload)
}

func TestNewConfigRejectsBadEnums(t *testing.T) {
	_, err := NewConfig("log_level: verbose\n", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = NewConfig("log_format: xml\n", "yaml")
	require.Error(t, err)
}

func TestReadInConfigInherits(t *testing.T) {
	fs := afero.NewMemMapFs()

	base := `
app_name: querygate base
log_level: debug
http_compress: false
`
	prod := `
inherits: base
app_name: querygate prod
production: true
`
	require.NoError(t, afero.WriteFile(fs, "/conf/base.yml", []byte(base), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/conf/prod.yml", []byte(prod), 0o644))

	c, err := ReadInConfigFS("/conf/prod.yml", fs)
	require.NoError(t, err)

	assert.Equal(t, "querygate prod", c.AppName)
	assert.True(t, c.Core.Production)
	assert.Equal(t, "/conf", c.ConfigPath)

	// values only the base sets survive the merge
	assert.Equal(t, "debug", c.LogLevel)
	assert.False(t, c.HTTPGZip)
}

func TestReadInConfigInheritsOnlyOneLevel(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/conf/a.yml", []byte("inherits: b\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/conf/b.yml", []byte("inherits: c\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/conf/c.yml", []byte("app_name: c\n"), 0o644))

	_, err := ReadInConfigFS("/conf/a.yml", fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot itself inherit")
}

func TestReadInConfigEnvOverride(t *testing.T) {
	t.Setenv("QG_PRODUCTION", "true")
	t.Setenv("QG_ADMIN_SECRET_KEY", "hunter2")
	t.Setenv("QG_ASSIST_API_KEY", "sk-live")
	t.Setenv("PORT", "9000")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/conf/dev.yml", []byte("app_name: dev\n"), 0o644))

	c, err := ReadInConfigFS("/conf/dev.yml", fs)
	require.NoError(t, err)

	assert.True(t, c.Core.Production)
	assert.Equal(t, "hunter2", c.AdminSecretKey)
	assert.Equal(t, "sk-live", c.Assist.APIKey)
	assert.Equal(t, "9000", c.Port)
}

func TestShouldUseJSONLogs(t *testing.T) {
	c := &Config{}
	c.LogFormat = "json"
	assert.True(t, c.ShouldUseJSONLogs())

	c = &Config{}
	c.LogFormat = "auto"
	assert.False(t, c.ShouldUseJSONLogs())
	c.Core.Production = true
	assert.True(t, c.ShouldUseJSONLogs())

	c = &Config{}
	c.LogFormat = "simple"
	c.Core.Production = true
	assert.False(t, c.ShouldUseJSONLogs())
}

func TestGetConfigName(t *testing.T) {
	for env, want := range map[string]string{
		"":            "dev",
		"development": "dev",
		"production":  "prod",
		"PROD":        "prod",
		"staging":     "stage",
		"testing":     "test",
		"custom":      "custom",
	} {
		t.Setenv("GO_ENV", env)
		assert.Equal(t, want, GetConfigName(), "GO_ENV=%q", env)
	}
}

func TestAbsolutePath(t *testing.T) {
	c := &Config{}
	c.ConfigPath = "/etc/querygate"

	assert.Equal(t, filepath.Join("/etc/querygate", "schema.json"), c.AbsolutePath("schema.json"))
	assert.Equal(t, "/tmp/schema.json", c.AbsolutePath("/tmp/schema.json"))
}
