package sqlbridge

import (
	"context"
	sqldrv "database/sql/driver"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/driver"
	"github.com/BaSui01/sessiondb/session"
)

// Factory 为每条 database/sql 连接创建会话
type Factory func(ctx context.Context) (*session.Conn, error)

// Connector 实现 database/sql/driver.Connector
type Connector struct {
	factory Factory
	logger  *zap.Logger
}

// NewConnector 用自定义工厂创建 Connector
func NewConnector(factory Factory, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		factory: factory,
		logger:  logger.With(zap.String("component", "sqlbridge")),
	}
}

// ForDriver 每条连接都用同一组参数新建会话
func ForDriver(drv driver.Driver, cfg session.Config, logger *zap.Logger, opts ...session.Option) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]session.Option{session.WithLogger(logger)}, opts...)
	return NewConnector(func(ctx context.Context) (*session.Conn, error) {
		return session.New(ctx, drv, cfg, opts...)
	}, logger)
}

// Connect 实现 driver.Connector
func (c *Connector) Connect(ctx context.Context) (sqldrv.Conn, error) {
	sess, err := c.factory(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("bridge connection created", zap.String("session_id", sess.ID()))
	return &conn{sess: sess, logger: c.logger}, nil
}

// Driver 实现 driver.Connector
func (c *Connector) Driver() sqldrv.Driver {
	return bridgeDriver{}
}

type bridgeDriver struct{}

// Open 不支持按名称打开，只能通过 sql.OpenDB(connector) 使用
func (bridgeDriver) Open(string) (sqldrv.Conn, error) {
	return nil, errors.New("sqlbridge: use sql.OpenDB with a Connector")
}

var _ sqldrv.Connector = (*Connector)(nil)
