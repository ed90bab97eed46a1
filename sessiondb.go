// Package sessiondb provides top-level entry points that turn an application
// [config.Config] into a ready-to-use session, database/sql pool or GORM
// manager.
//
// Usage:
//
//	import "github.com/BaSui01/sessiondb"
//
//	conn, err := sessiondb.Open(ctx, cfg, logger)
//	db, err := sessiondb.OpenDB(cfg, logger)
//	mgr, err := sessiondb.OpenManager(cfg, logger)
//
// The database/sql driver named by cfg.Database.Driver must be registered
// by the caller (for example with a blank import of lib/pq or pgx/v5/stdlib).
package sessiondb

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/config"
	"github.com/BaSui01/sessiondb/internal/database"
	"github.com/BaSui01/sessiondb/session"
	"github.com/BaSui01/sessiondb/sqlbridge"
	"github.com/BaSui01/sessiondb/sqldriver"
)

// Open validates cfg and creates a single session. Unless lazy connect is
// enabled, the connection is established before Open returns.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...session.Option) (*session.Conn, error) {
	drv, sessCfg, sessOpts, err := prepare(cfg, logger)
	if err != nil {
		return nil, err
	}
	return session.New(ctx, drv, sessCfg, append(sessOpts, opts...)...)
}

// OpenDB returns a database/sql pool in which every pooled connection is
// a session.
func OpenDB(cfg *config.Config, logger *zap.Logger, opts ...session.Option) (*sql.DB, error) {
	drv, sessCfg, sessOpts, err := prepare(cfg, logger)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(sqlbridge.ForDriver(drv, sessCfg, logger, append(sessOpts, opts...)...))
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	return db, nil
}

// OpenManager returns a GORM manager over session-backed connections.
func OpenManager(cfg *config.Config, logger *zap.Logger, opts ...session.Option) (*database.Manager, error) {
	drv, sessCfg, sessOpts, err := prepare(cfg, logger)
	if err != nil {
		return nil, err
	}
	return database.Open(
		sqlbridge.ForDriver(drv, sessCfg, logger, append(sessOpts, opts...)...),
		drv.Dialect(), PoolConfig(cfg), logger,
	)
}

// PoolConfig derives pool settings from cfg.Database, falling back to the
// defaults for unset values.
func PoolConfig(cfg *config.Config) database.PoolConfig {
	pool := database.DefaultPoolConfig()
	if cfg.Database.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		pool.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if pool.MaxIdleConns > pool.MaxOpenConns {
		pool.MaxIdleConns = pool.MaxOpenConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return pool
}

func prepare(cfg *config.Config, logger *zap.Logger) (*sqldriver.Driver, session.Config, []session.Option, error) {
	if cfg == nil {
		return nil, session.Config{}, nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, session.Config{}, nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, session.Config{}, nil, err
	}
	drv := sqldriver.New(cfg.Database.Driver, sqldriver.WithLogger(logger))
	opts := append([]session.Option{session.WithLogger(logger)}, cfg.SessionOptions()...)
	return drv, sessCfg, opts, nil
}
