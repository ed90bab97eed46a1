package sessiondb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "facade.db")
	return cfg
}

func TestOpen_SQLiteSession(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, sqliteConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()

	assert.True(t, conn.IsConnected())
	_, err = conn.Exec(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)")
	require.NoError(t, err)

	n, err := conn.Exec(ctx, "INSERT INTO notes (body) VALUES ('a'), ('b')")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	alive, err := conn.IsAlive(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestOpen_LazyConnect(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	cfg.Session.LazyConnect = true

	conn, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, conn.IsConnected())
	_, err = conn.Exec(ctx, "CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	assert.True(t, conn.IsConnected())
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), nil, nil)
	assert.Error(t, err)

	cfg := config.DefaultConfig()
	cfg.Database.Driver = "oracle"
	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = OpenDB(cfg, nil)
	assert.Error(t, err)
	_, err = OpenManager(cfg, nil)
	assert.Error(t, err)
}

func TestOpenDB_PoolOfSessions(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Database.MaxOpenConns = 1

	db, err := OpenDB(cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO kv (k, v) VALUES (?, ?)", "a", "one")
	require.NoError(t, err)

	var v string
	require.NoError(t, db.QueryRow("SELECT v FROM kv WHERE k = ?", "a").Scan(&v))
	assert.Equal(t, "one", v)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenManager_SQLite(t *testing.T) {
	type Account struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}

	mgr, err := OpenManager(sqliteConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer mgr.Close()

	require.NoError(t, mgr.DB().AutoMigrate(&Account{}))
	require.NoError(t, mgr.DB().Create(&Account{Name: "alice"}).Error)

	var got Account
	require.NoError(t, mgr.DB().First(&got, "name = ?", "alice").Error)
	assert.Equal(t, "alice", got.Name)
	require.NoError(t, mgr.Ping(context.Background()))
}

func TestPoolConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.MaxOpenConns = 4
	cfg.Database.MaxIdleConns = 8
	cfg.Database.ConnMaxLifetime = time.Minute

	pool := PoolConfig(cfg)
	assert.Equal(t, 4, pool.MaxOpenConns)
	assert.Equal(t, 4, pool.MaxIdleConns)
	assert.Equal(t, time.Minute, pool.ConnMaxLifetime)
	require.NoError(t, pool.Validate())

	cfg.Database.MaxOpenConns = 0
	cfg.Database.MaxIdleConns = 0
	assert.Equal(t, 10, PoolConfig(cfg).MaxOpenConns)
}
