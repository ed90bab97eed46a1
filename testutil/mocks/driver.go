// MockDriver 的底层驱动测试模拟实现。
//
// 支持打开失败、探测语句失败、"执行前无法绑定列" 等错误注入，
// 并记录每个连接与语句句柄上的调用顺序。
package mocks

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/BaSui01/sessiondb/driver"
)

// ErrMockFailure 注入的通用失败
var ErrMockFailure = errors.New("mock: injected failure")

// --- MockDriver 结构 ---

// MockDriver 是 driver.Driver 的模拟实现
type MockDriver struct {
	mu sync.Mutex

	// 行为配置
	openErr          error
	openFailures     int
	failingQueries   map[string]error
	failingPrepares  map[string]error
	failingExecs     map[string]error
	failingAttrs     map[driver.Attr]error
	rows             map[string][]driver.Row
	rowsAffected     int64
	columnNeedsExec  bool
	rejectParamNames map[string]bool
	closeErr         error

	// 调用记录
	configs    []driver.ConnectConfig
	conns      []*MockConn
	queryCalls []string
}

// NewMockDriver 创建新的 MockDriver
func NewMockDriver() *MockDriver {
	return &MockDriver{
		failingQueries:   make(map[string]error),
		failingPrepares:  make(map[string]error),
		failingExecs:     make(map[string]error),
		failingAttrs:     make(map[driver.Attr]error),
		rows:             make(map[string][]driver.Row),
		rejectParamNames: make(map[string]bool),
		rowsAffected:     1,
	}
}

// --- Builder 方法 ---

// WithCloseError 连接句柄 Close 时返回 err（句柄仍视为已关闭）
func (d *MockDriver) WithCloseError(err error) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr = err
	return d
}

// WithOpenError 每次 Open 都返回 err；传 nil 恢复正常
func (d *MockDriver) WithOpenError(err error) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
	return d
}

// WithOpenFailures 接下来 n 次 Open 失败
func (d *MockDriver) WithOpenFailures(n int) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openFailures = n
	return d
}

// WithFailingQuery 直接查询 query 时返回 err（用于模拟探测语句不被支持）
func (d *MockDriver) WithFailingQuery(query string, err error) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failingQueries, query)
	} else {
		d.failingQueries[query] = err
	}
	return d
}

// WithFailingPrepare 预处理 query 时返回 err
func (d *MockDriver) WithFailingPrepare(query string, err error) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failingPrepares, query)
	} else {
		d.failingPrepares[query] = err
	}
	return d
}

// WithFailingExec 执行 query（Exec 或语句 Execute）时返回 err
func (d *MockDriver) WithFailingExec(query string, err error) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failingExecs, query)
	} else {
		d.failingExecs[query] = err
	}
	return d
}

// WithFailingAttribute 设置 attr 时返回 err
func (d *MockDriver) WithFailingAttribute(attr driver.Attr, err error) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failingAttrs, attr)
	} else {
		d.failingAttrs[attr] = err
	}
	return d
}

// WithRows 设置 query 执行后的结果集
func (d *MockDriver) WithRows(query string, rows ...driver.Row) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[query] = rows
	return d
}

// WithRowsAffected 设置 Exec / Execute 的受影响行数
func (d *MockDriver) WithRowsAffected(n int64) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rowsAffected = n
	return d
}

// WithColumnBindRequiresExecute 模拟执行前拒绝绑定列的驱动
func (d *MockDriver) WithColumnBindRequiresExecute(on bool) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.columnNeedsExec = on
	return d
}

// WithRejectedParam 绑定名为 name 的参数时失败
func (d *MockDriver) WithRejectedParam(name string) *MockDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectParamNames[strings.TrimPrefix(name, ":")] = true
	return d
}

// --- driver.Driver 实现 ---

// Open 实现 driver.Driver
func (d *MockDriver) Open(ctx context.Context, cfg driver.ConnectConfig) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.configs = append(d.configs, cfg)
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.openFailures > 0 {
		d.openFailures--
		return nil, fmt.Errorf("%w: open", ErrMockFailure)
	}

	c := &MockConn{
		drv:   d,
		id:    len(d.conns) + 1,
		attrs: make(map[driver.Attr]any),
	}
	for k, v := range cfg.Options {
		c.attrs[k] = v
	}
	d.conns = append(d.conns, c)
	return c, nil
}

// --- 查询方法 ---

// OpenCount 成功打开的连接数
func (d *MockDriver) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// OpenAttempts Open 被调用的次数（含失败）
func (d *MockDriver) OpenAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.configs)
}

// LastConfig 最近一次 Open 收到的参数
func (d *MockDriver) LastConfig() driver.ConnectConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.configs) == 0 {
		return driver.ConnectConfig{}
	}
	return d.configs[len(d.configs)-1]
}

// Conns 所有打开过的连接
func (d *MockDriver) Conns() []*MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockConn(nil), d.conns...)
}

// LastConn 最近打开的连接
func (d *MockDriver) LastConn() *MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// QueryCalls 所有连接上直接查询的 SQL，按调用顺序
func (d *MockDriver) QueryCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queryCalls...)
}

// CountQueries 直接查询 query 的次数
func (d *MockDriver) CountQueries(query string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.queryCalls {
		if q == query {
			n++
		}
	}
	return n
}

// Reset 清除调用记录，保留行为配置
func (d *MockDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = nil
	d.conns = nil
	d.queryCalls = nil
}

// =============================================================================
// 🔌 MockConn
// =============================================================================

// MockConn 是 driver.Conn 的模拟实现
type MockConn struct {
	drv *MockDriver
	id  int

	closed     bool
	closeCount int
	attrs      map[driver.Attr]any
	attrOrder  []driver.Attr
	inTx       bool
	lastID     int64
	lastErr    driver.ErrorInfo
	stmts      []*MockStmt
}

// ID 连接序号，从 1 开始
func (c *MockConn) ID() int { return c.id }

// Closed 是否已关闭
func (c *MockConn) Closed() bool {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return c.closed
}

// CloseCount Close 被调用的次数
func (c *MockConn) CloseCount() int {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return c.closeCount
}

// AttributeOrder SetAttribute 成功的顺序
func (c *MockConn) AttributeOrder() []driver.Attr {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return append([]driver.Attr(nil), c.attrOrder...)
}

// Statements 在该连接上创建的所有语句句柄
func (c *MockConn) Statements() []*MockStmt {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return append([]*MockStmt(nil), c.stmts...)
}

// LastStatement 最近创建的语句句柄
func (c *MockConn) LastStatement() *MockStmt {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if len(c.stmts) == 0 {
		return nil
	}
	return c.stmts[len(c.stmts)-1]
}

func (c *MockConn) check() error {
	if c.closed {
		return driver.ErrClosed
	}
	return nil
}

func (c *MockConn) fail(err error) error {
	c.lastErr = driver.ErrorInfo{SQLState: "HY000", Code: "1", Message: err.Error()}
	return err
}

func (c *MockConn) newStmt(query string, prepared bool, so driver.StatementOptions) *MockStmt {
	s := &MockStmt{
		conn:     c,
		query:    query,
		prepared: prepared,
		opts:     so,
		attrs:    make(map[driver.Attr]any),
		columns:  make(map[driver.Column]driver.ColumnBinding),
		params:   make(map[driver.Param]driver.ParamBinding),
		values:   make(map[driver.Param]driver.ValueBinding),
	}
	if so.FetchMode != nil {
		m := *so.FetchMode
		s.fetchMode = &m
	}
	c.stmts = append(c.stmts, s)
	return s
}

// Prepare 实现 driver.Conn
func (c *MockConn) Prepare(_ context.Context, query string, so driver.StatementOptions) (driver.Stmt, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	if err, ok := c.drv.failingPrepares[query]; ok {
		return nil, c.fail(err)
	}
	c.lastErr = driver.ErrorInfo{}
	return c.newStmt(query, true, so), nil
}

// Query 实现 driver.Conn
func (c *MockConn) Query(_ context.Context, query string, so driver.StatementOptions) (driver.Stmt, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	c.drv.queryCalls = append(c.drv.queryCalls, query)
	if err, ok := c.drv.failingQueries[query]; ok {
		return nil, c.fail(err)
	}
	c.lastErr = driver.ErrorInfo{}
	s := c.newStmt(query, false, so)
	s.markExecuted(nil)
	return s, nil
}

// Exec 实现 driver.Conn
func (c *MockConn) Exec(_ context.Context, query string) (int64, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return 0, err
	}
	if err, ok := c.drv.failingExecs[query]; ok {
		return 0, c.fail(err)
	}
	c.lastErr = driver.ErrorInfo{}
	c.lastID++
	return c.drv.rowsAffected, nil
}

// SetAttribute 实现 driver.Conn
func (c *MockConn) SetAttribute(attr driver.Attr, value any) error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if err, ok := c.drv.failingAttrs[attr]; ok {
		return c.fail(err)
	}
	c.attrs[attr] = value
	c.attrOrder = append(c.attrOrder, attr)
	return nil
}

// Attribute 实现 driver.Conn
func (c *MockConn) Attribute(attr driver.Attr) (any, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	switch attr {
	case driver.AttrDriverName:
		return "mock", nil
	case driver.AttrConnectionStatus:
		return fmt.Sprintf("mock connection #%d", c.id), nil
	}
	v, ok := c.attrs[attr]
	if !ok {
		return nil, driver.ErrUnsupportedAttribute
	}
	return v, nil
}

// BeginTx 实现 driver.Conn
func (c *MockConn) BeginTx(context.Context) error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if c.inTx {
		return c.fail(errors.New("mock: already in transaction"))
	}
	c.inTx = true
	return nil
}

// Commit 实现 driver.Conn
func (c *MockConn) Commit() error {
	return c.endTx()
}

// Rollback 实现 driver.Conn
func (c *MockConn) Rollback() error {
	return c.endTx()
}

func (c *MockConn) endTx() error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if !c.inTx {
		return c.fail(errors.New("mock: no active transaction"))
	}
	c.inTx = false
	return nil
}

// InTransaction 实现 driver.Conn
func (c *MockConn) InTransaction() bool {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return c.inTx
}

// Quote 实现 driver.Conn
func (c *MockConn) Quote(s string) (string, error) {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

// LastInsertID 实现 driver.Conn
func (c *MockConn) LastInsertID(context.Context, string) (string, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return fmt.Sprintf("%d", c.lastID), nil
}

// ErrorCode 实现 driver.Conn
func (c *MockConn) ErrorCode() string {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return c.lastErr.SQLState
}

// ErrorInfo 实现 driver.Conn
func (c *MockConn) ErrorInfo() driver.ErrorInfo {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	return c.lastErr
}

// Close 实现 driver.Conn
func (c *MockConn) Close() error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	c.closeCount++
	c.closed = true
	return c.drv.closeErr
}

// =============================================================================
// 📝 MockStmt
// =============================================================================

// MockStmt 是 driver.Stmt 的模拟实现
type MockStmt struct {
	conn     *MockConn
	query    string
	prepared bool
	opts     driver.StatementOptions

	closed     bool
	closeCount int
	executed   bool
	executions int
	ops        []string

	attrs     map[driver.Attr]any
	columns   map[driver.Column]driver.ColumnBinding
	params    map[driver.Param]driver.ParamBinding
	values    map[driver.Param]driver.ValueBinding
	fetchMode *driver.FetchMode

	lastArgs  []any
	lastInput map[string]any
	rows      []driver.Row
	cursor    int
	lastErr   driver.ErrorInfo
}

// Query 语句 SQL
func (s *MockStmt) Query() string { return s.query }

// Prepared 是否由 Prepare 创建
func (s *MockStmt) Prepared() bool { return s.prepared }

// Options 创建时的语句选项
func (s *MockStmt) Options() driver.StatementOptions { return s.opts }

// Closed 是否已关闭
func (s *MockStmt) Closed() bool {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return s.closed
}

// CloseCount Close 被调用的次数
func (s *MockStmt) CloseCount() int {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return s.closeCount
}

// Executions Execute 成功的次数
func (s *MockStmt) Executions() int {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return s.executions
}

// Ops 状态变更调用的顺序，如 "attr:timeout"、"column:1"、"param::id"、"value::id"、"fetch_mode"
func (s *MockStmt) Ops() []string {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// ColumnBindings 当前的列绑定
func (s *MockStmt) ColumnBindings() map[driver.Column]driver.ColumnBinding {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	out := make(map[driver.Column]driver.ColumnBinding, len(s.columns))
	for k, v := range s.columns {
		out[k] = v
	}
	return out
}

// ParamBindings 当前的按引用参数绑定
func (s *MockStmt) ParamBindings() map[driver.Param]driver.ParamBinding {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	out := make(map[driver.Param]driver.ParamBinding, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// ValueBindings 当前的按值参数绑定
func (s *MockStmt) ValueBindings() map[driver.Param]driver.ValueBinding {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	out := make(map[driver.Param]driver.ValueBinding, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// CurrentFetchMode 当前取数模式
func (s *MockStmt) CurrentFetchMode() *driver.FetchMode {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return s.fetchMode
}

// LastInput 最近一次执行时驱动读到的参数值，键为 Param.String()
func (s *MockStmt) LastInput() map[string]any {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	out := make(map[string]any, len(s.lastInput))
	for k, v := range s.lastInput {
		out[k] = v
	}
	return out
}

// LastArgs 最近一次 Execute 的位置参数
func (s *MockStmt) LastArgs() []any {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return append([]any(nil), s.lastArgs...)
}

func (s *MockStmt) check() error {
	if s.closed || s.conn.closed {
		return driver.ErrClosed
	}
	return nil
}

func (s *MockStmt) fail(err error) error {
	s.lastErr = driver.ErrorInfo{SQLState: "HY000", Code: "1", Message: err.Error()}
	return err
}

func (s *MockStmt) markExecuted(input map[string]any) {
	s.executed = true
	s.executions++
	s.lastInput = input
	s.rows = s.conn.drv.rows[s.query]
	s.cursor = 0
	s.lastErr = driver.ErrorInfo{}
}

// BindColumn 实现 driver.Stmt
func (s *MockStmt) BindColumn(col driver.Column, b driver.ColumnBinding) error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if s.conn.drv.columnNeedsExec && !s.executed {
		return s.fail(driver.ErrNoResultSet)
	}
	s.columns[col] = b
	s.ops = append(s.ops, "column:"+col.String())
	return nil
}

// BindParam 实现 driver.Stmt
func (s *MockStmt) BindParam(p driver.Param, b driver.ParamBinding) error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if name, ok := p.Name(); ok && s.conn.drv.rejectParamNames[name] {
		return s.fail(driver.ErrInvalidParam)
	}
	if b.Source == nil {
		return s.fail(driver.ErrInvalidParam)
	}
	delete(s.values, p)
	s.params[p] = b
	s.ops = append(s.ops, "param:"+p.String())
	return nil
}

// BindValue 实现 driver.Stmt
func (s *MockStmt) BindValue(p driver.Param, b driver.ValueBinding) error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if name, ok := p.Name(); ok && s.conn.drv.rejectParamNames[name] {
		return s.fail(driver.ErrInvalidParam)
	}
	delete(s.params, p)
	s.values[p] = b
	s.ops = append(s.ops, "value:"+p.String())
	return nil
}

// SetAttribute 实现 driver.Stmt
func (s *MockStmt) SetAttribute(attr driver.Attr, value any) error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if err, ok := s.conn.drv.failingAttrs[attr]; ok {
		return s.fail(err)
	}
	s.attrs[attr] = value
	s.ops = append(s.ops, "attr:"+string(attr))
	return nil
}

// Attribute 实现 driver.Stmt
func (s *MockStmt) Attribute(attr driver.Attr) (any, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	v, ok := s.attrs[attr]
	if !ok {
		return nil, driver.ErrUnsupportedAttribute
	}
	return v, nil
}

// SetFetchMode 实现 driver.Stmt
func (s *MockStmt) SetFetchMode(mode driver.FetchMode) error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	m := mode
	s.fetchMode = &m
	s.ops = append(s.ops, "fetch_mode")
	return nil
}

// Execute 实现 driver.Stmt：读取所有绑定参数的当前值
func (s *MockStmt) Execute(ctx context.Context, args []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if err, ok := s.conn.drv.failingExecs[s.query]; ok {
		return s.fail(err)
	}

	input := make(map[string]any, len(s.params)+len(s.values))
	for p, b := range s.params {
		v, err := b.Source.BoundValue()
		if err != nil {
			return s.fail(err)
		}
		input[p.String()] = v
	}
	for p, b := range s.values {
		input[p.String()] = b.Value
	}
	s.lastArgs = append([]any(nil), args...)
	s.markExecuted(input)
	return nil
}

// Fetch 实现 driver.Stmt；FetchBound 模式下同时写入已绑定的列变量
func (s *MockStmt) Fetch(context.Context) (driver.Row, bool, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	row, ok, err := s.next()
	if err != nil || !ok {
		return driver.Row{}, ok, err
	}
	if s.fetchMode != nil && s.fetchMode.Kind == driver.FetchBound {
		if err := s.assignBound(row); err != nil {
			return driver.Row{}, false, s.fail(err)
		}
	}
	return row, true, nil
}

func (s *MockStmt) next() (driver.Row, bool, error) {
	if err := s.check(); err != nil {
		return driver.Row{}, false, err
	}
	if !s.executed {
		return driver.Row{}, false, s.fail(driver.ErrNoResultSet)
	}
	if s.cursor >= len(s.rows) {
		return driver.Row{}, false, nil
	}
	row := s.rows[s.cursor]
	s.cursor++
	return row, true, nil
}

func (s *MockStmt) assignBound(row driver.Row) error {
	for col, b := range s.columns {
		var (
			v  any
			ok bool
		)
		if name, byName := col.Name(); byName {
			v, ok = row.Get(name)
		} else if idx, _ := col.Index(); idx >= 1 && idx <= row.Len() {
			v, ok = row.Values[idx-1], true
		}
		if !ok {
			return driver.ErrInvalidColumn
		}
		if err := assign(b.Dest, v); err != nil {
			return err
		}
	}
	return nil
}

func assign(dest, v any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("mock: destination must be a non-nil pointer, got %T", dest)
	}
	elem := rv.Elem()
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	val := reflect.ValueOf(v)
	switch {
	case val.Type().AssignableTo(elem.Type()):
		elem.Set(val)
	case val.Type().ConvertibleTo(elem.Type()):
		elem.Set(val.Convert(elem.Type()))
	default:
		return fmt.Errorf("mock: cannot assign %T to %s", v, elem.Type())
	}
	return nil
}

// FetchAll 实现 driver.Stmt
func (s *MockStmt) FetchAll(context.Context) ([]driver.Row, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	var out []driver.Row
	for {
		row, ok, err := s.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

// FetchColumn 实现 driver.Stmt
func (s *MockStmt) FetchColumn(_ context.Context, idx int) (any, bool, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	row, ok, err := s.next()
	if err != nil || !ok {
		return nil, ok, err
	}
	if idx < 0 || idx >= row.Len() {
		return nil, false, s.fail(driver.ErrInvalidColumn)
	}
	return row.Values[idx], true, nil
}

// FetchInto 实现 driver.Stmt；dest 支持 *driver.Row 与 *map[string]any
func (s *MockStmt) FetchInto(_ context.Context, dest any) (bool, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	row, ok, err := s.next()
	if err != nil || !ok {
		return ok, err
	}
	switch d := dest.(type) {
	case *driver.Row:
		*d = row
	case *map[string]any:
		*d = row.Map()
	default:
		return false, s.fail(fmt.Errorf("mock: unsupported fetch target %T", dest))
	}
	return true, nil
}

// ColumnCount 实现 driver.Stmt
func (s *MockStmt) ColumnCount() int {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if !s.executed || len(s.rows) == 0 {
		return 0
	}
	return len(s.rows[0].Columns)
}

// RowCount 实现 driver.Stmt
func (s *MockStmt) RowCount() int64 {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if !s.executed {
		return 0
	}
	if len(s.rows) > 0 {
		return int64(len(s.rows))
	}
	return s.conn.drv.rowsAffected
}

// ColumnMeta 实现 driver.Stmt
func (s *MockStmt) ColumnMeta(idx int) (driver.ColumnMeta, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if !s.executed || len(s.rows) == 0 || idx < 0 || idx >= len(s.rows[0].Columns) {
		return driver.ColumnMeta{}, driver.ErrInvalidColumn
	}
	return driver.ColumnMeta{Name: s.rows[0].Columns[idx], DatabaseType: "MOCK"}, nil
}

// NextRowset 实现 driver.Stmt；模拟驱动只有一个结果集
func (s *MockStmt) NextRowset() (bool, error) {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	s.cursor = len(s.rows)
	return false, nil
}

// CloseCursor 实现 driver.Stmt
func (s *MockStmt) CloseCursor() error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.cursor = len(s.rows)
	return nil
}

// ErrorCode 实现 driver.Stmt
func (s *MockStmt) ErrorCode() string {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return s.lastErr.SQLState
}

// ErrorInfo 实现 driver.Stmt
func (s *MockStmt) ErrorInfo() driver.ErrorInfo {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return s.lastErr
}

// DebugDumpParams 实现 driver.Stmt
func (s *MockStmt) DebugDumpParams() string {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	return fmt.Sprintf("SQL: [%d] %s\nParams:  %d\n", len(s.query), s.query, len(s.params)+len(s.values))
}

// Close 实现 driver.Stmt
func (s *MockStmt) Close() error {
	s.conn.drv.mu.Lock()
	defer s.conn.drv.mu.Unlock()
	s.closeCount++
	s.closed = true
	return nil
}

// 编译期接口检查
var (
	_ driver.Driver = (*MockDriver)(nil)
	_ driver.Conn   = (*MockConn)(nil)
	_ driver.Stmt   = (*MockStmt)(nil)
)
