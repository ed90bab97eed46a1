package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/sessiondb/driver"
)

// querier *sql.Conn 与 *sql.Tx 的公共部分
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Conn 固定在一条物理连接上的句柄
type Conn struct {
	d    *Driver
	db   *sql.DB
	conn *sql.Conn
	tx   *sql.Tx

	timeout     time.Duration
	caseMode    driver.CaseMode
	fetchMode   driver.FetchMode
	sessionVars map[string]any

	lastResult sql.Result
	lastErr    driver.ErrorInfo
	closed     bool
}

func newConn(d *Driver, db *sql.DB, sc *sql.Conn) *Conn {
	return &Conn{
		d:           d,
		db:          db,
		conn:        sc,
		sessionVars: make(map[string]any),
	}
}

func (c *Conn) q() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// withTimeout 按连接超时包装上下文
func (c *Conn) withTimeout(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	d := c.timeout
	if override > 0 {
		d = override
	}
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// record 记录最近一次操作的错误并原样返回
func (c *Conn) record(err error) error {
	c.lastErr = errorInfo(err)
	return err
}

func (c *Conn) check() error {
	if c.closed {
		return c.record(driver.ErrClosed)
	}
	return nil
}

// Prepare 实现 driver.Conn
func (c *Conn) Prepare(ctx context.Context, query string, so driver.StatementOptions) (driver.Stmt, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx, so.Timeout)
	defer cancel()

	ps, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.record(err)
	}
	c.lastErr = driver.ErrorInfo{}
	return newStmt(c, query, ps, so), nil
}

// Query 实现 driver.Conn：直接执行并返回持有结果集的语句
func (c *Conn) Query(ctx context.Context, query string, so driver.StatementOptions) (driver.Stmt, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	st := newStmt(c, query, nil, so)
	if err := st.Execute(ctx, nil); err != nil {
		_ = st.Close()
		return nil, c.record(err)
	}
	c.lastErr = driver.ErrorInfo{}
	return st, nil
}

// Exec 实现 driver.Conn
func (c *Conn) Exec(ctx context.Context, query string) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	ctx, cancel := c.withTimeout(ctx, 0)
	defer cancel()

	res, err := c.q().ExecContext(ctx, query)
	if err != nil {
		return 0, c.record(err)
	}
	c.lastResult = res
	c.lastErr = driver.ErrorInfo{}

	n, err := res.RowsAffected()
	if err != nil {
		// 部分驱动不支持受影响行数
		return 0, nil
	}
	return n, nil
}

// =============================================================================
// 🏷️ 属性
// =============================================================================

// SetAttribute 实现 driver.Conn
func (c *Conn) SetAttribute(attr driver.Attr, value any) error {
	if err := c.check(); err != nil {
		return err
	}

	switch attr {
	case driver.AttrTimeout:
		d, err := toDuration(value)
		if err != nil {
			return c.record(err)
		}
		c.timeout = d
	case driver.AttrCase:
		m, ok := value.(driver.CaseMode)
		if !ok {
			return c.record(fmt.Errorf("%w: case expects driver.CaseMode, got %T", driver.ErrUnsupportedAttribute, value))
		}
		c.caseMode = m
	case driver.AttrDefaultFetchMode:
		m, err := toFetchMode(value)
		if err != nil {
			return c.record(err)
		}
		c.fetchMode = m
	case driver.AttrDriverName, driver.AttrServerVersion, driver.AttrConnectionStatus:
		return c.record(driver.ErrReadOnlyAttribute)
	default:
		name, ok := attr.SessionVar()
		if !ok {
			return c.record(fmt.Errorf("%w: %s", driver.ErrUnsupportedAttribute, attr))
		}
		stmt, err := c.d.dialect.sessionVarSQL(name, value)
		if err != nil {
			return c.record(err)
		}
		ctx, cancel := c.withTimeout(context.Background(), 0)
		defer cancel()
		if _, err := c.q().ExecContext(ctx, stmt); err != nil {
			return c.record(err)
		}
		c.sessionVars[name] = value
	}

	c.lastErr = driver.ErrorInfo{}
	return nil
}

// Attribute 实现 driver.Conn
func (c *Conn) Attribute(attr driver.Attr) (any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	switch attr {
	case driver.AttrTimeout:
		return c.timeout, nil
	case driver.AttrCase:
		return c.caseMode, nil
	case driver.AttrDefaultFetchMode:
		return c.fetchMode, nil
	case driver.AttrDriverName:
		return c.d.driverName, nil
	case driver.AttrConnectionStatus:
		if c.tx != nil {
			return "connected (in transaction)", nil
		}
		return "connected", nil
	case driver.AttrServerVersion:
		ctx, cancel := c.withTimeout(context.Background(), 0)
		defer cancel()
		var v string
		if err := c.q().QueryRowContext(ctx, c.d.dialect.versionSQL()).Scan(&v); err != nil {
			return nil, c.record(err)
		}
		return v, nil
	}

	if name, ok := attr.SessionVar(); ok {
		if v, ok := c.sessionVars[name]; ok {
			return v, nil
		}
	}
	return nil, c.record(fmt.Errorf("%w: %s", driver.ErrUnsupportedAttribute, attr))
}

// =============================================================================
// 💼 事务
// =============================================================================

// BeginTx 实现 driver.Conn
func (c *Conn) BeginTx(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.tx != nil {
		return c.record(errors.New("sqldriver: there is already an active transaction"))
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.record(err)
	}
	c.tx = tx
	c.lastErr = driver.ErrorInfo{}
	return nil
}

// Commit 实现 driver.Conn
func (c *Conn) Commit() error {
	return c.endTx(func(tx *sql.Tx) error { return tx.Commit() })
}

// Rollback 实现 driver.Conn
func (c *Conn) Rollback() error {
	return c.endTx(func(tx *sql.Tx) error { return tx.Rollback() })
}

func (c *Conn) endTx(fn func(*sql.Tx) error) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.tx == nil {
		return c.record(errors.New("sqldriver: there is no active transaction"))
	}
	tx := c.tx
	c.tx = nil
	if err := fn(tx); err != nil {
		return c.record(err)
	}
	c.lastErr = driver.ErrorInfo{}
	return nil
}

// InTransaction 实现 driver.Conn
func (c *Conn) InTransaction() bool { return c.tx != nil }

// =============================================================================
// 🎯 其他
// =============================================================================

// Quote 实现 driver.Conn
func (c *Conn) Quote(s string) (string, error) {
	return c.d.dialect.quote(s), nil
}

// LastInsertID 实现 driver.Conn
func (c *Conn) LastInsertID(ctx context.Context, name string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}

	if c.lastResult != nil && name == "" {
		if id, err := c.lastResult.LastInsertId(); err == nil {
			return fmt.Sprintf("%d", id), nil
		}
	}

	query, args := c.d.dialect.lastInsertIDSQL(name)
	if query == "" {
		return "", c.record(fmt.Errorf("%w: last insert id", driver.ErrUnsupportedAttribute))
	}
	ctx, cancel := c.withTimeout(ctx, 0)
	defer cancel()

	var id sql.NullString
	if err := c.q().QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", c.record(err)
	}
	return id.String, nil
}

// ErrorCode 实现 driver.Conn
func (c *Conn) ErrorCode() string { return c.lastErr.SQLState }

// ErrorInfo 实现 driver.Conn
func (c *Conn) ErrorInfo() driver.ErrorInfo { return c.lastErr }

// Close 实现 driver.Conn：回滚未完成的事务并关闭物理连接
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		c.tx = nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, err)
	}

	c.d.logger.Debug("connection closed")
	return errors.Join(errs...)
}

var _ driver.Conn = (*Conn)(nil)
