package migration

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/sessiondb/config"
	"github.com/BaSui01/sessiondb/sqlbridge"
	"github.com/BaSui01/sessiondb/sqldriver"
)

// NewMigratorFromConfig creates a migrator whose statements run on a session-backed pool
func NewMigratorFromConfig(cfg *appconfig.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	dbType, err := ParseDatabaseType(cfg.Database.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}

	connector := sqlbridge.ForDriver(
		sqldriver.New(cfg.Database.Driver, sqldriver.WithLogger(logger)),
		sessCfg, logger, cfg.SessionOptions()...,
	)
	db := sql.OpenDB(connector)
	if dbType == DatabaseTypeSQLite {
		// 迁移事务与版本表读写必须落在同一个 SQLite 连接上
		db.SetMaxOpenConns(1)
	}

	m, err := NewMigrator(&Config{
		DatabaseType:   dbType,
		DB:             db,
		MigrationsPath: cfg.Database.MigrationsPath,
		TableName:      "schema_migrations",
		Logger:         logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}
