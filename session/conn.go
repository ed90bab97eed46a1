package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/driver"
)

const instrumentationName = "github.com/BaSui01/sessiondb/session"

// =============================================================================
// 🗄️ 连接生命周期管理器
// =============================================================================

// Conn 在底层连接句柄之上提供延迟连接、显式断开/重连与存活探测，
// 并让预处理语句在断开重连后透明地继续可用。
//
// Conn 不是并发安全的，跨 goroutine 使用需要调用方自行同步。
type Conn struct {
	id     string
	drv    driver.Driver
	cfg    Config
	opts   options
	logger *zap.Logger
	tracer trace.Tracer

	handle        driver.Conn
	everConnected bool
	connectedAt   time.Time
	generation    uint64

	liveness *Liveness
	attrs    *orderedMap[driver.Attr, any]
	prober   *prober

	// registry 只持有语句句柄，用于断开时批量释放；语句包装对象归调用方所有
	registry   map[uint64]driver.Stmt
	nextStmtID uint64
}

// Stats 会话状态快照
type Stats struct {
	ID             string    `json:"id"`
	Connected      bool      `json:"connected"`
	EverConnected  bool      `json:"ever_connected"`
	ConnectedAt    time.Time `json:"connected_at"`
	Generation     uint64    `json:"generation"`
	OpenStatements int       `json:"open_statements"`
	Attributes     int       `json:"attributes"`
	LastAlive      bool      `json:"last_alive"`
	LastObservedAt time.Time `json:"last_observed_at"`
}

// New 创建会话；cfg.LazyConnect 为 false 时立即建立连接
func New(ctx context.Context, drv driver.Driver, cfg Config, opts ...Option) (*Conn, error) {
	if drv == nil {
		return nil, fmt.Errorf("driver cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}

	id := uuid.NewString()
	c := &Conn{
		id:       id,
		drv:      drv,
		cfg:      cfg,
		opts:     o,
		logger:   o.logger.With(zap.String("component", "db_session"), zap.String("session_id", id)),
		tracer:   o.tracer,
		liveness: &Liveness{},
		attrs:    newOrderedMap[driver.Attr, any](),
		prober:   newProber(o.probeQueries),
		registry: make(map[uint64]driver.Stmt),
	}

	if !cfg.LazyConnect {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ID 会话标识
func (c *Conn) ID() string { return c.id }

// =============================================================================
// 🔄 连接 / 断开 / 重连
// =============================================================================

// Connect 建立连接；已连接时什么也不做
func (c *Conn) Connect(ctx context.Context) error {
	if c.handle != nil {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "sessiondb.connect",
		trace.WithAttributes(attribute.Bool("sessiondb.ever_connected", c.everConnected)))
	defer span.End()

	start := c.opts.now()
	h, err := c.drv.Open(ctx, c.cfg.connectConfig())
	if err != nil {
		c.failSpan(span, err)
		c.opts.observer.ObserveConnect(c.opts.now().Sub(start), err)
		c.logger.Warn("database connect failed", zap.Error(err))
		return err
	}

	// 按原始插入顺序把属性重新应用到新句柄
	if err := c.attrs.Each(func(k driver.Attr, v any) error {
		if err := h.SetAttribute(k, v); err != nil {
			return fmt.Errorf("replay attribute %s: %w", k, err)
		}
		return nil
	}); err != nil {
		if closeErr := h.Close(); closeErr != nil {
			c.logger.Debug("closing handle after failed attribute replay", zap.Error(closeErr))
		}
		c.failSpan(span, err)
		c.opts.observer.ObserveConnect(c.opts.now().Sub(start), err)
		c.logger.Warn("attribute replay failed", zap.Error(err))
		return err
	}

	now := c.opts.now()
	c.handle = h
	c.generation++
	c.connectedAt = now
	c.liveness.Observe(true, now)
	c.everConnected = true

	c.opts.observer.ObserveConnect(now.Sub(start), nil)
	c.logger.Info("database connected",
		zap.Uint64("generation", c.generation),
		zap.Int("replayed_attributes", c.attrs.Len()),
	)
	return nil
}

// Disconnect 释放所有登记的语句句柄与连接句柄；未连接时什么也不做。
// 语句包装对象本身不受影响，会在下次使用时自行重建。
func (c *Conn) Disconnect() error {
	if c.handle == nil {
		return nil
	}

	c.liveness.Reset()

	released := len(c.registry)
	for id, st := range c.registry {
		if err := st.Close(); err != nil {
			c.logger.Debug("closing statement handle failed", zap.Uint64("statement_id", id), zap.Error(err))
		}
	}
	c.registry = make(map[uint64]driver.Stmt)

	h := c.handle
	c.handle = nil
	c.generation++

	err := h.Close()
	c.opts.observer.ObserveDisconnect(released)
	if err != nil {
		c.logger.Warn("closing connection handle failed", zap.Error(err))
		return err
	}

	c.logger.Info("database disconnected", zap.Int("released_statements", released))
	return nil
}

// Reconnect 断开后重新连接。关闭旧句柄失败不会阻止建立新连接，
// 但该错误与连接结果一起返回。
func (c *Conn) Reconnect(ctx context.Context) error {
	disconnectErr := c.Disconnect()
	return errors.Join(disconnectErr, c.Connect(ctx))
}

// IsConnected 当前是否持有连接句柄
func (c *Conn) IsConnected() bool {
	return c.handle != nil
}

// ConnectedAt 最近一次建立连接的时间
func (c *Conn) ConnectedAt() time.Time {
	return c.connectedAt
}

// Close 释放连接，效果同 Disconnect
func (c *Conn) Close() error {
	return c.Disconnect()
}

// requireConnection 保证持有句柄。从未连接过时总会连接；
// 显式断开后只有开启自动重连才会重新连接。
func (c *Conn) requireConnection(ctx context.Context, op string) error {
	if c.handle != nil {
		return nil
	}
	if !c.everConnected {
		return c.Connect(ctx)
	}
	if !c.cfg.AutoReconnect {
		return ErrNotConnected.WithOp(op)
	}
	if c.opts.limiter != nil && !c.opts.limiter.Allow() {
		c.logger.Warn("auto-reconnect throttled", zap.String("op", op))
		return ErrReconnectThrottled.WithOp(op)
	}

	c.logger.Info("auto-reconnecting", zap.String("op", op))
	return c.Connect(ctx)
}

// =============================================================================
// 💓 存活检查
// =============================================================================

// IsAlive 检查连接是否仍能响应查询。
// cacheFor > 0 且缓存的观测足够新时直接返回缓存结果，不发起探测。
func (c *Conn) IsAlive(ctx context.Context, cacheFor time.Duration) (bool, error) {
	if err := c.requireConnection(ctx, "is_alive"); err != nil {
		return false, err
	}

	if alive, ok := c.liveness.Fresh(c.opts.now(), cacheFor); ok {
		c.opts.observer.ObserveProbe(alive, true)
		return alive, nil
	}

	ctx, span := c.tracer.Start(ctx, "sessiondb.probe")
	defer span.End()

	alive := c.prober.probe(ctx, c.handle, c.logger)
	c.liveness.Observe(alive, c.opts.now())
	span.SetAttributes(attribute.Bool("sessiondb.alive", alive))

	c.opts.observer.ObserveProbe(alive, false)
	if !alive {
		c.logger.Warn("liveness probe failed")
	}
	return alive, nil
}

// Liveness 返回与语句共享的存活观测单元
func (c *Conn) Liveness() *Liveness {
	return c.liveness
}

// =============================================================================
// 🎯 透传操作
// =============================================================================

// ErrorCode 最近一次连接级操作的 SQLSTATE；未连接时为空
func (c *Conn) ErrorCode() string {
	if c.handle == nil {
		return ""
	}
	return c.handle.ErrorCode()
}

// ErrorInfo 最近一次连接级操作的错误信息；未连接时为零值
func (c *Conn) ErrorInfo() driver.ErrorInfo {
	if c.handle == nil {
		return driver.ErrorInfo{}
	}
	return c.handle.ErrorInfo()
}

// Attribute 读取连接属性
func (c *Conn) Attribute(ctx context.Context, attr driver.Attr) (any, error) {
	if err := c.requireConnection(ctx, "get_attribute"); err != nil {
		return nil, err
	}
	return c.handle.Attribute(attr)
}

// SetAttribute 设置连接属性；成功后记入属性表，每次重连按顺序重放
func (c *Conn) SetAttribute(ctx context.Context, attr driver.Attr, value any) error {
	if err := c.requireConnection(ctx, "set_attribute"); err != nil {
		return err
	}
	if err := c.handle.SetAttribute(attr, value); err != nil {
		return err
	}
	c.attrs.Set(attr, value)
	return nil
}

// InTransaction 是否处于事务中
func (c *Conn) InTransaction(ctx context.Context) (bool, error) {
	if err := c.requireConnection(ctx, "in_transaction"); err != nil {
		return false, err
	}
	return c.handle.InTransaction(), nil
}

// BeginTransaction 开启事务
func (c *Conn) BeginTransaction(ctx context.Context) error {
	if err := c.requireConnection(ctx, "begin_transaction"); err != nil {
		return err
	}
	return c.handle.BeginTx(ctx)
}

// Commit 提交事务
func (c *Conn) Commit(ctx context.Context) error {
	if err := c.requireConnection(ctx, "commit"); err != nil {
		return err
	}
	return c.handle.Commit()
}

// Rollback 回滚事务
func (c *Conn) Rollback(ctx context.Context) error {
	if err := c.requireConnection(ctx, "rollback"); err != nil {
		return err
	}
	return c.handle.Rollback()
}

// Quote 为字面量加引号
func (c *Conn) Quote(ctx context.Context, s string) (string, error) {
	if err := c.requireConnection(ctx, "quote"); err != nil {
		return "", err
	}
	return c.handle.Quote(s)
}

// LastInsertID 最近插入的行 ID
func (c *Conn) LastInsertID(ctx context.Context, name string) (string, error) {
	if err := c.requireConnection(ctx, "last_insert_id"); err != nil {
		return "", err
	}
	return c.handle.LastInsertID(ctx, name)
}

// Prepare 预处理语句，返回可跨重连使用的语句包装
func (c *Conn) Prepare(ctx context.Context, query string, opts ...StatementOption) (*Stmt, error) {
	if err := c.requireConnection(ctx, "prepare"); err != nil {
		return nil, err
	}
	so := buildStatementOptions(opts)
	h, err := c.handle.Prepare(ctx, query, so)
	if err != nil {
		return nil, err
	}
	return newStmt(c, c.liveness, true, query, so, h, c.register(h), c.generation), nil
}

// Query 直接执行查询，返回语句包装；重建时会重新执行该查询
func (c *Conn) Query(ctx context.Context, query string, opts ...StatementOption) (*Stmt, error) {
	if err := c.requireConnection(ctx, "query"); err != nil {
		return nil, err
	}
	so := buildStatementOptions(opts)
	h, err := c.handle.Query(ctx, query, so)
	if err != nil {
		return nil, err
	}
	c.liveness.Observe(true, c.opts.now())
	return newStmt(c, c.liveness, false, query, so, h, c.register(h), c.generation), nil
}

// Exec 执行语句并返回受影响行数
func (c *Conn) Exec(ctx context.Context, query string) (int64, error) {
	if err := c.requireConnection(ctx, "exec"); err != nil {
		return 0, err
	}
	n, err := c.handle.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	c.liveness.Observe(true, c.opts.now())
	return n, nil
}

// Stats 返回会话状态快照
func (c *Conn) Stats() Stats {
	alive, at, _ := c.liveness.Last()
	return Stats{
		ID:             c.id,
		Connected:      c.handle != nil,
		EverConnected:  c.everConnected,
		ConnectedAt:    c.connectedAt,
		Generation:     c.generation,
		OpenStatements: len(c.registry),
		Attributes:     c.attrs.Len(),
		LastAlive:      alive,
		LastObservedAt: at,
	}
}

// =============================================================================
// 🔧 语句回调
// =============================================================================

func (c *Conn) register(h driver.Stmt) uint64 {
	c.nextStmtID++
	c.registry[c.nextStmtID] = h
	return c.nextStmtID
}

// reconstructStatement 为丢失句柄的语句重新预处理（或重新查询），并登记新句柄
func (c *Conn) reconstructStatement(ctx context.Context, prepared bool, query string, so driver.StatementOptions) (driver.Stmt, uint64, uint64, error) {
	ctx, span := c.tracer.Start(ctx, "sessiondb.reconstruct",
		trace.WithAttributes(attribute.Bool("sessiondb.prepared", prepared)))
	defer span.End()

	if err := c.requireConnection(ctx, "reconstruct"); err != nil {
		c.failSpan(span, err)
		c.opts.observer.ObserveReconstruct(prepared, err)
		return nil, 0, 0, err
	}

	var (
		h   driver.Stmt
		err error
	)
	if prepared {
		h, err = c.handle.Prepare(ctx, query, so)
	} else {
		h, err = c.handle.Query(ctx, query, so)
	}
	if err != nil {
		c.failSpan(span, err)
		c.opts.observer.ObserveReconstruct(prepared, err)
		c.logger.Warn("statement reconstruction failed", zap.Bool("prepared", prepared), zap.Error(err))
		return nil, 0, 0, err
	}
	if !prepared {
		c.liveness.Observe(true, c.opts.now())
	}

	id := c.register(h)
	c.opts.observer.ObserveReconstruct(prepared, nil)
	c.logger.Debug("statement reconstructed",
		zap.Bool("prepared", prepared),
		zap.Uint64("statement_id", id),
		zap.Uint64("generation", c.generation),
	)
	return h, id, c.generation, nil
}

// forgetStatement 从登记表移除一个语句句柄
func (c *Conn) forgetStatement(id uint64) {
	delete(c.registry, id)
}

func (c *Conn) currentGeneration() uint64 { return c.generation }

func (c *Conn) clock() time.Time { return c.opts.now() }

func (c *Conn) failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func isSessionError(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrReconnectThrottled)
}
