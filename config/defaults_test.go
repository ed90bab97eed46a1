package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, SessionConfig{}, cfg.Session)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, StatusConfig{}, cfg.Status)
	assert.NoError(t, cfg.Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	assert.False(t, cfg.LazyConnect)
	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, time.Second, cfg.AliveCache)
	assert.Zero(t, cfg.ReconnectRate)
	assert.Empty(t, cfg.ProbeQueries)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestDefaultTelemetryAndMetricsConfig(t *testing.T) {
	tel := DefaultTelemetryConfig()
	assert.False(t, tel.Enabled)
	assert.Equal(t, "sessiondb", tel.ServiceName)

	m := DefaultMetricsConfig()
	assert.False(t, m.Enabled)
	assert.Equal(t, ":9091", m.ListenAddr)
	assert.Equal(t, "sessiondb", m.Namespace)
}

func TestDefaultStatusConfig(t *testing.T) {
	cfg := DefaultStatusConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "sessiondb:status:", cfg.KeyPrefix)
	assert.Equal(t, time.Minute, cfg.TTL)
}
