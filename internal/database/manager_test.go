package database

import (
	"context"
	"database/sql"
	sqldrv "database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/sessiondb/session"
	"github.com/BaSui01/sessiondb/sqlbridge"
	"github.com/BaSui01/sessiondb/sqldriver"
	"github.com/BaSui01/sessiondb/testutil/mocks"
)

// =============================================================================
// 🧪 Manager 测试（sqlmock）
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:               NewGormLogger(zap.NewNop(), 0),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

func TestNewManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	config := testPoolConfig()
	manager, err := NewManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, manager.logger)
	assert.Equal(t, config, manager.config)
	assert.Equal(t, gormDB, manager.DB())
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewManager_NilDB(t *testing.T) {
	_, err := NewManager(nil, testPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))
}

func TestManager_GetStats(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	stats := manager.GetStats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}

func TestManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransactionRollback(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransactionRetry_SessionDropped(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return session.ErrNotConnected.WithOp("exec")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransactionRetry_NotRetryable(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("unique constraint violated")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestManager_WithTransactionRetry_Exhausted(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	start := time.Now()
	err = manager.WithTransactionRetry(context.Background(), 1, func(tx *gorm.DB) error {
		attempts++
		return session.ErrNotConnected.WithOp("exec")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNotConnected)
	assert.Contains(t, err.Error(), "after 1 retries")
	assert.Equal(t, 1, attempts)
	// 最后一次失败后不再退避等待
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransactionRetry_InvalidMaxRetries(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	called := false
	for _, n := range []int{0, -2} {
		err = manager.WithTransactionRetry(context.Background(), n, func(tx *gorm.DB) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maxRetries")
	}
	assert.False(t, called)
}

func TestManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close(), "close is idempotent")
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, manager.Ping(context.Background()))
	assert.Error(t, manager.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }))
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{name: "valid config", config: testPoolConfig()},
		{name: "defaults", config: DefaultPoolConfig()},
		{name: "invalid max open conns", config: PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, wantErr: true},
		{name: "invalid max idle conns", config: PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, wantErr: true},
		{name: "idle > open", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, wantErr: true},
		{name: "negative lifetime", config: PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1, ConnMaxLifetime: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{session.ErrNotConnected, true},
		{fmt.Errorf("wrapped: %w", session.ErrReconnectThrottled.WithOp("exec")), true},
		{sqldrv.ErrBadConn, true},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("Lock wait timeout exceeded"), true},
		{session.ErrReconstructFailed, false},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}

func TestDialector_Unsupported(t *testing.T) {
	_, err := Dialector(sqldriver.DialectGeneric, nil)
	assert.Error(t, err)
}

// =============================================================================
// 🌉 通过 sqlbridge 打开
// =============================================================================

func TestOpen_OverMockSessions(t *testing.T) {
	drv := mocks.NewMockDriver()
	connector := sqlbridge.ForDriver(drv, session.Config{DSN: "mock://gorm"}, zap.NewNop())

	manager, err := Open(connector, sqldriver.DialectPostgres, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	// gorm.Open 会 Ping 一次
	assert.GreaterOrEqual(t, drv.CountQueries("SELECT 1"), 1)

	res := manager.DB().Exec("DELETE FROM users WHERE id = ?", 7)
	require.NoError(t, res.Error)
	assert.Equal(t, int64(1), res.RowsAffected)

	st := drv.LastConn().LastStatement()
	require.NotNil(t, st)
	assert.Equal(t, "DELETE FROM users WHERE id = $1", st.Query())
	assert.Equal(t, map[string]any{"1": int64(7)}, st.LastInput())
}

func TestOpen_InvalidPoolConfig(t *testing.T) {
	connector := sqlbridge.ForDriver(mocks.NewMockDriver(), session.Config{DSN: "mock://"}, nil)
	_, err := Open(connector, sqldriver.DialectPostgres, PoolConfig{}, zap.NewNop())
	assert.Error(t, err)
}

type account struct {
	ID    uint `gorm:"primaryKey"`
	Owner string
	Cents int64
}

func TestOpen_SQLiteEndToEnd(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "gorm.db")
	connector := sqlbridge.ForDriver(sqldriver.New("sqlite"), session.Config{DSN: dsn}, zap.NewNop())

	cfg := testPoolConfig()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	manager, err := Open(connector, sqldriver.DialectSQLite, cfg, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	db := manager.DB()
	require.NoError(t, db.AutoMigrate(&account{}))
	require.NoError(t, db.Create(&account{Owner: "alice", Cents: 1200}).Error)

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Model(&account{}).Where("owner = ?", "alice").Update("cents", 900).Error
	})
	require.NoError(t, err)

	var got account
	require.NoError(t, db.Where("owner = ?", "alice").First(&got).Error)
	assert.Equal(t, int64(900), got.Cents)
	assert.NoError(t, manager.Ping(context.Background()))
}
