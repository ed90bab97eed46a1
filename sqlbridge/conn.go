package sqlbridge

import (
	"context"
	sqldrv "database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/driver"
	"github.com/BaSui01/sessiondb/session"
)

// conn 一条 database/sql 连接对应一个会话
type conn struct {
	sess   *session.Conn
	logger *zap.Logger
}

func (c *conn) Prepare(query string) (sqldrv.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(ctx context.Context, query string) (sqldrv.Stmt, error) {
	st, err := c.sess.Prepare(ctx, query)
	if err != nil {
		return nil, c.translate(err)
	}
	return &stmt{c: c, st: st}, nil
}

func (c *conn) Close() error {
	return c.sess.Close()
}

func (c *conn) Begin() (sqldrv.Tx, error) {
	return c.BeginTx(context.Background(), sqldrv.TxOptions{})
}

func (c *conn) BeginTx(ctx context.Context, opts sqldrv.TxOptions) (sqldrv.Tx, error) {
	if opts.ReadOnly {
		return nil, errors.New("sqlbridge: read-only transactions are not supported")
	}
	if opts.Isolation != sqldrv.IsolationLevel(0) {
		return nil, errors.New("sqlbridge: custom isolation levels are not supported")
	}
	if err := c.sess.BeginTransaction(ctx); err != nil {
		return nil, c.translate(err)
	}
	return &tx{ctx: ctx, sess: c.sess}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []sqldrv.NamedValue) (sqldrv.Result, error) {
	if len(args) == 0 {
		n, err := c.sess.Exec(ctx, query)
		if err != nil {
			return nil, c.translate(err)
		}
		return &result{ctx: ctx, sess: c.sess, rows: n}, nil
	}

	st, err := c.sess.Prepare(ctx, query, session.WithKind(driver.KindExec))
	if err != nil {
		return nil, c.translate(err)
	}
	defer st.Close()
	return (&stmt{c: c, st: st}).ExecContext(ctx, args)
}

func (c *conn) QueryContext(ctx context.Context, query string, args []sqldrv.NamedValue) (sqldrv.Rows, error) {
	if len(args) == 0 {
		st, err := c.sess.Query(ctx, query, session.WithKind(driver.KindQuery))
		if err != nil {
			return nil, c.translate(err)
		}
		return newRows(ctx, st, true)
	}

	st, err := c.sess.Prepare(ctx, query, session.WithKind(driver.KindQuery))
	if err != nil {
		return nil, c.translate(err)
	}
	s := &stmt{c: c, st: st, owned: true}
	return s.QueryContext(ctx, args)
}

// Ping 实现 driver.Pinger：不使用缓存
func (c *conn) Ping(ctx context.Context) error {
	alive, err := c.sess.IsAlive(ctx, 0)
	if err != nil {
		return c.translate(err)
	}
	if !alive {
		return sqldrv.ErrBadConn
	}
	return nil
}

// IsValid 实现 driver.Validator
func (c *conn) IsValid() bool {
	return c.sess.IsConnected()
}

// ResetSession 实现 driver.SessionResetter
func (c *conn) ResetSession(context.Context) error {
	if !c.sess.IsConnected() {
		return sqldrv.ErrBadConn
	}
	return nil
}

// translate 会话显式断开且不会自动重连时让 database/sql 丢弃该连接
func (c *conn) translate(err error) error {
	if errors.Is(err, session.ErrNotConnected) {
		c.logger.Debug("session not connected, discarding bridge connection", zap.Error(err))
		return sqldrv.ErrBadConn
	}
	return err
}

// =============================================================================
// 📝 语句
// =============================================================================

type stmt struct {
	c  *conn
	st *session.Stmt
	// owned 为 true 时由 rows 关闭
	owned bool
}

func (s *stmt) Close() error {
	if s.owned {
		return nil
	}
	return s.st.Close()
}

func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec(args []sqldrv.Value) (sqldrv.Result, error) {
	return s.ExecContext(context.Background(), toNamed(args))
}

func (s *stmt) Query(args []sqldrv.Value) (sqldrv.Rows, error) {
	return s.QueryContext(context.Background(), toNamed(args))
}

func (s *stmt) bind(ctx context.Context, args []sqldrv.NamedValue) error {
	for _, a := range args {
		p := driver.ParamPos(a.Ordinal)
		if a.Name != "" {
			p = driver.ParamName(a.Name)
		}
		if err := s.st.BindValue(ctx, p, driver.ValueBinding{Value: a.Value}); err != nil {
			return fmt.Errorf("bind %s: %w", p, err)
		}
	}
	return nil
}

func (s *stmt) ExecContext(ctx context.Context, args []sqldrv.NamedValue) (sqldrv.Result, error) {
	if err := s.bind(ctx, args); err != nil {
		return nil, s.c.translate(err)
	}
	if err := s.st.Execute(ctx); err != nil {
		return nil, s.c.translate(err)
	}
	n, err := s.st.RowCount(ctx)
	if err != nil {
		return nil, s.c.translate(err)
	}
	return &result{ctx: ctx, sess: s.c.sess, rows: n}, nil
}

func (s *stmt) QueryContext(ctx context.Context, args []sqldrv.NamedValue) (sqldrv.Rows, error) {
	fail := func(err error) (sqldrv.Rows, error) {
		if s.owned {
			_ = s.st.Close()
		}
		return nil, s.c.translate(err)
	}
	if err := s.bind(ctx, args); err != nil {
		return fail(err)
	}
	if err := s.st.Execute(ctx); err != nil {
		return fail(err)
	}
	r, err := newRows(ctx, s.st, s.owned)
	if err != nil {
		return fail(err)
	}
	return r, nil
}

func toNamed(args []sqldrv.Value) []sqldrv.NamedValue {
	out := make([]sqldrv.NamedValue, len(args))
	for i, v := range args {
		out[i] = sqldrv.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

// =============================================================================
// 📄 结果集
// =============================================================================

type rows struct {
	ctx   context.Context
	st    *session.Stmt
	cols  []string
	owned bool
}

func newRows(ctx context.Context, st *session.Stmt, owned bool) (*rows, error) {
	n, err := st.ColumnCount(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]string, n)
	for i := range cols {
		meta, err := st.ColumnMeta(ctx, i)
		if err != nil {
			return nil, err
		}
		cols[i] = meta.Name
	}
	return &rows{ctx: ctx, st: st, cols: cols, owned: owned}, nil
}

func (r *rows) Columns() []string { return r.cols }

func (r *rows) Close() error {
	if r.owned {
		return r.st.Close()
	}
	return r.st.CloseCursor(r.ctx)
}

func (r *rows) Next(dest []sqldrv.Value) error {
	row, ok, err := r.st.Fetch(r.ctx)
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}
	for i := range dest {
		if i >= row.Len() {
			dest[i] = nil
			continue
		}
		v, err := sqldrv.DefaultParameterConverter.ConvertValue(row.Values[i])
		if err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
		dest[i] = v
	}
	return nil
}

// =============================================================================
// 💼 事务与执行结果
// =============================================================================

type tx struct {
	ctx  context.Context
	sess *session.Conn
}

func (t *tx) Commit() error   { return t.sess.Commit(t.ctx) }
func (t *tx) Rollback() error { return t.sess.Rollback(t.ctx) }

type result struct {
	ctx  context.Context
	sess *session.Conn
	rows int64
}

func (r *result) LastInsertId() (int64, error) {
	id, err := r.sess.LastInsertID(r.ctx, "")
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(id, 10, 64)
}

func (r *result) RowsAffected() (int64, error) { return r.rows, nil }

var (
	_ sqldrv.ConnPrepareContext = (*conn)(nil)
	_ sqldrv.ConnBeginTx        = (*conn)(nil)
	_ sqldrv.ExecerContext      = (*conn)(nil)
	_ sqldrv.QueryerContext     = (*conn)(nil)
	_ sqldrv.Pinger             = (*conn)(nil)
	_ sqldrv.Validator          = (*conn)(nil)
	_ sqldrv.SessionResetter    = (*conn)(nil)
	_ sqldrv.StmtExecContext    = (*stmt)(nil)
	_ sqldrv.StmtQueryContext   = (*stmt)(nil)
)
