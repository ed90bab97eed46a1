package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sessiondb/driver"
)

// =============================================================================
// 📝 语句包装与状态重放
// =============================================================================

// owner 语句重建所需的连接回调
type owner interface {
	reconstructStatement(ctx context.Context, prepared bool, query string, so driver.StatementOptions) (driver.Stmt, uint64, uint64, error)
	forgetStatement(id uint64)
	currentGeneration() uint64
	clock() time.Time
}

// Stmt 一条预处理或直接执行的语句。
//
// Stmt 记录每一次改变语句状态的调用（属性、列绑定、参数绑定、取数模式），
// 连接重建后第一次使用时，先重建底层句柄再按固定顺序重放这些记录。
type Stmt struct {
	owner    owner
	live     *Liveness
	logger   *zap.Logger
	observer Observer

	prepared bool
	query    string
	opts     driver.StatementOptions

	handle driver.Stmt
	id     uint64
	gen    uint64
	closed bool

	// 变更日志
	attrs     *orderedMap[driver.Attr, any]
	columns   *orderedMap[driver.Column, driver.ColumnBinding]
	pending   *orderedMap[driver.Column, struct{}]
	params    *orderedMap[driver.Param, driver.ParamBinding]
	values    *orderedMap[driver.Param, driver.ValueBinding]
	fetchMode *driver.FetchMode
}

func newStmt(c *Conn, live *Liveness, prepared bool, query string, so driver.StatementOptions, h driver.Stmt, id, gen uint64) *Stmt {
	return &Stmt{
		owner:    c,
		live:     live,
		logger:   c.logger.With(zap.Bool("prepared", prepared)),
		observer: c.opts.observer,
		prepared: prepared,
		query:    query,
		opts:     so,
		handle:   h,
		id:       id,
		gen:      gen,
		attrs:    newOrderedMap[driver.Attr, any](),
		columns:  newOrderedMap[driver.Column, driver.ColumnBinding](),
		pending:  newOrderedMap[driver.Column, struct{}](),
		params:   newOrderedMap[driver.Param, driver.ParamBinding](),
		values:   newOrderedMap[driver.Param, driver.ValueBinding](),
	}
}

// Query 创建语句时的 SQL 文本
func (s *Stmt) Query() string { return s.query }

// Prepared 是否为预处理语句
func (s *Stmt) Prepared() bool { return s.prepared }

// ensureHandle 在每个公开操作开始时调用：句柄缺失或已过期时重建并重放
func (s *Stmt) ensureHandle(ctx context.Context, op string) error {
	if s.closed {
		return ErrStatementClosed.WithOp(op)
	}
	if s.handle != nil && s.gen == s.owner.currentGeneration() {
		return nil
	}

	// 旧句柄已随连接一起释放
	s.handle = nil

	h, id, gen, err := s.owner.reconstructStatement(ctx, s.prepared, s.query, s.opts)
	if err != nil {
		if isSessionError(err) {
			return err
		}
		return ErrReconstructFailed.WithOp(op).WithCause(err)
	}
	s.handle, s.id, s.gen = h, id, gen

	if err := s.replay(); err != nil {
		s.release()
		return err
	}
	return nil
}

// replay 顺序：属性 → 列绑定 → 按引用参数 → 按值参数 → 取数模式
func (s *Stmt) replay() error {
	if err := s.attrs.Each(func(k driver.Attr, v any) error {
		return s.handle.SetAttribute(k, v)
	}); err != nil {
		return fmt.Errorf("replay attribute: %w", err)
	}

	deferred := 0
	_ = s.columns.Each(func(col driver.Column, b driver.ColumnBinding) error {
		if err := s.handle.BindColumn(col, b); err != nil {
			// 部分驱动在结果集出现前拒绝绑定列，推迟到下次执行成功后
			s.pending.Set(col, struct{}{})
			s.observer.ObserveDeferredColumn(false)
			deferred++
			s.logger.Debug("column binding deferred", zap.Stringer("column", col), zap.Error(err))
			return nil
		}
		s.pending.Delete(col)
		return nil
	})

	if err := s.params.Each(func(p driver.Param, b driver.ParamBinding) error {
		return s.handle.BindParam(p, b)
	}); err != nil {
		return fmt.Errorf("replay parameter binding: %w", err)
	}

	if err := s.values.Each(func(p driver.Param, b driver.ValueBinding) error {
		return s.handle.BindValue(p, b)
	}); err != nil {
		return fmt.Errorf("replay value binding: %w", err)
	}

	if s.fetchMode != nil {
		if err := s.handle.SetFetchMode(*s.fetchMode); err != nil {
			return fmt.Errorf("replay fetch mode: %w", err)
		}
	}

	s.logger.Debug("statement state replayed",
		zap.Int("attributes", s.attrs.Len()),
		zap.Int("columns", s.columns.Len()),
		zap.Int("deferred_columns", deferred),
		zap.Int("params", s.params.Len()),
		zap.Int("values", s.values.Len()),
	)
	return nil
}

// release 释放当前句柄并通知连接移除登记
func (s *Stmt) release() {
	if s.handle == nil {
		return
	}
	s.owner.forgetStatement(s.id)
	if err := s.handle.Close(); err != nil {
		s.logger.Debug("closing statement handle failed", zap.Error(err))
	}
	s.handle = nil
}

// Close 释放语句；此后所有操作返回 ErrStatementClosed
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.handle == nil || s.gen != s.owner.currentGeneration() {
		s.handle = nil
		return nil
	}

	s.owner.forgetStatement(s.id)
	err := s.handle.Close()
	s.handle = nil
	return err
}

// =============================================================================
// ✏️ 变更操作（成功后写入日志，同键后写覆盖）
// =============================================================================

// BindColumn 绑定输出列
func (s *Stmt) BindColumn(ctx context.Context, col driver.Column, b driver.ColumnBinding) error {
	if err := s.ensureHandle(ctx, "bind_column"); err != nil {
		return err
	}
	if err := s.handle.BindColumn(col, b); err != nil {
		return err
	}
	s.columns.Set(col, b)
	s.pending.Delete(col)
	return nil
}

// BindParam 按引用绑定参数，清除同一标识的按值绑定
func (s *Stmt) BindParam(ctx context.Context, p driver.Param, b driver.ParamBinding) error {
	if err := s.ensureHandle(ctx, "bind_param"); err != nil {
		return err
	}
	if err := s.handle.BindParam(p, b); err != nil {
		return err
	}
	s.params.Set(p, b)
	s.values.Delete(p)
	return nil
}

// BindValue 按值绑定参数，清除同一标识的按引用绑定
func (s *Stmt) BindValue(ctx context.Context, p driver.Param, b driver.ValueBinding) error {
	if err := s.ensureHandle(ctx, "bind_value"); err != nil {
		return err
	}
	if err := s.handle.BindValue(p, b); err != nil {
		return err
	}
	s.values.Set(p, b)
	s.params.Delete(p)
	return nil
}

// SetAttribute 设置语句属性
func (s *Stmt) SetAttribute(ctx context.Context, attr driver.Attr, value any) error {
	if err := s.ensureHandle(ctx, "set_attribute"); err != nil {
		return err
	}
	if err := s.handle.SetAttribute(attr, value); err != nil {
		return err
	}
	s.attrs.Set(attr, value)
	return nil
}

// SetFetchMode 设置取数模式
func (s *Stmt) SetFetchMode(ctx context.Context, mode driver.FetchMode) error {
	if err := s.ensureHandle(ctx, "set_fetch_mode"); err != nil {
		return err
	}
	if err := s.handle.SetFetchMode(mode); err != nil {
		return err
	}
	m := mode
	s.fetchMode = &m
	return nil
}

// Execute 执行语句。成功即视为连接存活，并重试之前推迟的列绑定。
func (s *Stmt) Execute(ctx context.Context, args ...any) error {
	if err := s.ensureHandle(ctx, "execute"); err != nil {
		return err
	}
	if err := s.handle.Execute(ctx, args); err != nil {
		return err
	}
	s.live.Observe(true, s.owner.clock())
	s.resolvePending()
	return nil
}

func (s *Stmt) resolvePending() {
	for _, col := range s.pending.Keys() {
		b, ok := s.columns.Get(col)
		if !ok {
			s.pending.Delete(col)
			continue
		}
		if err := s.handle.BindColumn(col, b); err != nil {
			s.logger.Debug("deferred column binding still failing", zap.Stringer("column", col), zap.Error(err))
			continue
		}
		s.pending.Delete(col)
		s.observer.ObserveDeferredColumn(true)
	}
}

// =============================================================================
// 📖 只读操作（纯转发）
// =============================================================================

// Attribute 读取语句属性
func (s *Stmt) Attribute(ctx context.Context, attr driver.Attr) (any, error) {
	if err := s.ensureHandle(ctx, "get_attribute"); err != nil {
		return nil, err
	}
	return s.handle.Attribute(attr)
}

// Fetch 取下一行；结果集耗尽时 ok 为 false
func (s *Stmt) Fetch(ctx context.Context) (driver.Row, bool, error) {
	if err := s.ensureHandle(ctx, "fetch"); err != nil {
		return driver.Row{}, false, err
	}
	return s.handle.Fetch(ctx)
}

// FetchAll 取剩余所有行
func (s *Stmt) FetchAll(ctx context.Context) ([]driver.Row, error) {
	if err := s.ensureHandle(ctx, "fetch_all"); err != nil {
		return nil, err
	}
	return s.handle.FetchAll(ctx)
}

// FetchColumn 取下一行中第 idx 列（从 0 开始）
func (s *Stmt) FetchColumn(ctx context.Context, idx int) (any, bool, error) {
	if err := s.ensureHandle(ctx, "fetch_column"); err != nil {
		return nil, false, err
	}
	return s.handle.FetchColumn(ctx, idx)
}

// FetchInto 把下一行写入 dest 指向的结构体
func (s *Stmt) FetchInto(ctx context.Context, dest any) (bool, error) {
	if err := s.ensureHandle(ctx, "fetch_into"); err != nil {
		return false, err
	}
	return s.handle.FetchInto(ctx, dest)
}

// ColumnCount 结果集列数
func (s *Stmt) ColumnCount(ctx context.Context) (int, error) {
	if err := s.ensureHandle(ctx, "column_count"); err != nil {
		return 0, err
	}
	return s.handle.ColumnCount(), nil
}

// RowCount 最近一次执行影响的行数
func (s *Stmt) RowCount(ctx context.Context) (int64, error) {
	if err := s.ensureHandle(ctx, "row_count"); err != nil {
		return 0, err
	}
	return s.handle.RowCount(), nil
}

// ColumnMeta 第 idx 列（从 0 开始）的元数据
func (s *Stmt) ColumnMeta(ctx context.Context, idx int) (driver.ColumnMeta, error) {
	if err := s.ensureHandle(ctx, "column_meta"); err != nil {
		return driver.ColumnMeta{}, err
	}
	return s.handle.ColumnMeta(idx)
}

// NextRowset 前进到下一个结果集
func (s *Stmt) NextRowset(ctx context.Context) (bool, error) {
	if err := s.ensureHandle(ctx, "next_rowset"); err != nil {
		return false, err
	}
	return s.handle.NextRowset()
}

// CloseCursor 关闭游标，语句可再次执行
func (s *Stmt) CloseCursor(ctx context.Context) error {
	if err := s.ensureHandle(ctx, "close_cursor"); err != nil {
		return err
	}
	return s.handle.CloseCursor()
}

// ErrorCode 最近一次语句操作的 SQLSTATE。
// 没有有效句柄时为空：新建的句柄同样没有错误，因此不会为此触发重建。
func (s *Stmt) ErrorCode() string {
	if s.handle == nil || s.gen != s.owner.currentGeneration() {
		return ""
	}
	return s.handle.ErrorCode()
}

// ErrorInfo 最近一次语句操作的错误信息
func (s *Stmt) ErrorInfo() driver.ErrorInfo {
	if s.handle == nil || s.gen != s.owner.currentGeneration() {
		return driver.ErrorInfo{}
	}
	return s.handle.ErrorInfo()
}

// DebugDumpParams 输出 SQL 与绑定信息；没有有效句柄时根据变更日志生成
func (s *Stmt) DebugDumpParams() string {
	if s.handle != nil && s.gen == s.owner.currentGeneration() {
		return s.handle.DebugDumpParams()
	}
	return s.dumpLog()
}

func (s *Stmt) dumpLog() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SQL: [%d] %s\n", len(s.query), s.query)

	type line struct {
		key  string
		text string
	}
	var lines []line
	_ = s.params.Each(func(p driver.Param, pb driver.ParamBinding) error {
		lines = append(lines, line{p.String(), fmt.Sprintf("Param: %s by=ref type=%s", p, pb.Type)})
		return nil
	})
	_ = s.values.Each(func(p driver.Param, vb driver.ValueBinding) error {
		lines = append(lines, line{p.String(), fmt.Sprintf("Param: %s by=value type=%s value=%v", p, vb.Type, vb.Value)})
		return nil
	})
	sort.Slice(lines, func(i, j int) bool { return lines[i].key < lines[j].key })

	fmt.Fprintf(&b, "Params:  %d\n", len(lines))
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	return b.String()
}
