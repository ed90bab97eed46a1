package sqldriver

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/driver"
)

// =============================================================================
// 🔌 database/sql 驱动适配
// =============================================================================

// Opener 根据 DSN 打开 *sql.DB，测试中可替换为 sqlmock
type Opener func(ctx context.Context, dsn string) (*sql.DB, error)

// Driver 基于 database/sql 的 driver.Driver 实现
type Driver struct {
	driverName string
	dialect    Dialect
	logger     *zap.Logger
	opener     Opener
}

// Option 配置 Driver
type Option func(*Driver)

// WithDialect 显式指定方言，默认按驱动名推断
func WithDialect(d Dialect) Option {
	return func(drv *Driver) { drv.dialect = d }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(drv *Driver) {
		if logger != nil {
			drv.logger = logger
		}
	}
}

// WithOpener 替换 *sql.DB 的打开方式
func WithOpener(o Opener) Option {
	return func(drv *Driver) { drv.opener = o }
}

// New 创建驱动。driverName 是 database/sql 中注册的驱动名，
// 对应的驱动包需要由调用方导入。
func New(driverName string, opts ...Option) *Driver {
	d := &Driver{
		driverName: driverName,
		dialect:    DialectFor(driverName),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.opener == nil {
		d.opener = func(_ context.Context, dsn string) (*sql.DB, error) {
			return sql.Open(d.driverName, dsn)
		}
	}
	d.logger = d.logger.With(zap.String("component", "sqldriver"), zap.String("dialect", string(d.dialect)))
	return d
}

// Dialect 驱动使用的方言
func (d *Driver) Dialect() Dialect { return d.dialect }

// Open 实现 driver.Driver：打开独占的 *sql.DB 并固定一条连接
func (d *Driver) Open(ctx context.Context, cfg driver.ConnectConfig) (driver.Conn, error) {
	dsn, err := d.dialect.mergeCredentials(cfg.DSN, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}

	db, err := d.opener(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driverName, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	sc, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := sc.PingContext(ctx); err != nil {
		_ = sc.Close()
		_ = db.Close()
		return nil, err
	}

	c := newConn(d, db, sc)
	for _, attr := range cfg.OptionKeys() {
		if err := c.SetAttribute(attr, cfg.Options[attr]); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("apply option %s: %w", attr, err)
		}
	}

	d.logger.Debug("connection opened", zap.String("driver", d.driverName))
	return c, nil
}

var _ driver.Driver = (*Driver)(nil)
