// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Session.AutoReconnect)
	assert.Equal(t, time.Second, cfg.Session.AliveCache)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sessiondb.yaml")

	yamlContent := `
database:
  driver: mysql
  host: db.internal
  port: 3307
  user: app
  password: secret
  name: orders
  options:
    timeout: 5s
    session.time_zone: "+00:00"

session:
  lazy_connect: true
  auto_reconnect: false
  alive_cache: 250ms
  reconnect_rate: 0.5
  reconnect_burst: 2
  probe_queries:
    - SELECT 1 FROM DUAL

log:
  level: debug
  format: json

metrics:
  enabled: true
  listen_addr: "127.0.0.1:9200"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, map[string]string{"timeout": "5s", "session.time_zone": "+00:00"}, cfg.Database.Options)

	assert.True(t, cfg.Session.LazyConnect)
	assert.False(t, cfg.Session.AutoReconnect)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.AliveCache)
	assert.Equal(t, 0.5, cfg.Session.ReconnectRate)
	assert.Equal(t, []string{"SELECT 1 FROM DUAL"}, cfg.Session.ProbeQueries)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)

	// 未覆盖的字段保留默认值
	assert.Equal(t, "sessiondb", cfg.Telemetry.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database: [unterminated"), 0o600))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("SESSIONDB_DATABASE_DRIVER", "sqlite")
	t.Setenv("SESSIONDB_DATABASE_NAME", "/tmp/app.db")
	t.Setenv("SESSIONDB_DATABASE_OPTIONS", "timeout=3s, case=lower")
	t.Setenv("SESSIONDB_SESSION_LAZY_CONNECT", "true")
	t.Setenv("SESSIONDB_SESSION_ALIVE_CACHE", "2s")
	t.Setenv("SESSIONDB_SESSION_RECONNECT_RATE", "1.5")
	t.Setenv("SESSIONDB_SESSION_PROBE_QUERIES", "SELECT 1, VALUES 1")
	t.Setenv("SESSIONDB_LOG_OUTPUT_PATHS", "stdout,/var/log/sessiondb.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/app.db", cfg.Database.Name)
	assert.Equal(t, map[string]string{"timeout": "3s", "case": "lower"}, cfg.Database.Options)
	assert.True(t, cfg.Session.LazyConnect)
	assert.Equal(t, 2*time.Second, cfg.Session.AliveCache)
	assert.Equal(t, 1.5, cfg.Session.ReconnectRate)
	assert.Equal(t, []string{"SELECT 1", "VALUES 1"}, cfg.Session.ProbeQueries)
	assert.Equal(t, []string{"stdout", "/var/log/sessiondb.log"}, cfg.Log.OutputPaths)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_DATABASE_PORT", "6543")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SESSIONDB_DATABASE_PORT", "not-a-number"},
		{"SESSIONDB_SESSION_ALIVE_CACHE", "soon"},
		{"SESSIONDB_SESSION_AUTO_RECONNECT", "maybe"},
		{"SESSIONDB_DATABASE_OPTIONS", "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := NewLoader().Load()
			assert.Error(t, err)
		})
	}
}

func TestLoader_Validators(t *testing.T) {
	cfg, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	t.Setenv("SESSIONDB_DATABASE_DRIVER", "oracle")
	_, err = NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(":::"), 0o600))

	assert.Panics(t, func() { MustLoad(configPath) })
}
