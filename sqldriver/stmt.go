package sqldriver

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/sessiondb/driver"
)

// Stmt 预处理语句（ps 非空）或直接查询（ps 为空）
type Stmt struct {
	c     *Conn
	query string
	ps    *sql.Stmt
	kind  driver.StatementKind

	timeout time.Duration
	attrs   map[driver.Attr]any

	columns   map[driver.Column]driver.ColumnBinding
	params    map[driver.Param]driver.ParamBinding
	values    map[driver.Param]driver.ValueBinding
	fetchMode driver.FetchMode

	rows     *sql.Rows
	cancel   context.CancelFunc
	cols     []string
	colTypes []*sql.ColumnType
	executed bool
	rowCount int64

	lastErr driver.ErrorInfo
	closed  bool
}

func newStmt(c *Conn, query string, ps *sql.Stmt, so driver.StatementOptions) *Stmt {
	s := &Stmt{
		c:         c,
		query:     query,
		ps:        ps,
		kind:      so.Kind,
		timeout:   so.Timeout,
		attrs:     make(map[driver.Attr]any),
		columns:   make(map[driver.Column]driver.ColumnBinding),
		params:    make(map[driver.Param]driver.ParamBinding),
		values:    make(map[driver.Param]driver.ValueBinding),
		fetchMode: c.fetchMode,
	}
	if so.FetchMode != nil {
		s.fetchMode = *so.FetchMode
	}
	return s
}

func (s *Stmt) record(err error) error {
	s.lastErr = errorInfo(err)
	return err
}

func (s *Stmt) check() error {
	if s.closed {
		return s.record(driver.ErrClosed)
	}
	if s.c.closed {
		return s.record(driver.ErrClosed)
	}
	return nil
}

func (s *Stmt) ok() error {
	s.lastErr = driver.ErrorInfo{}
	return nil
}

// =============================================================================
// 📎 绑定
// =============================================================================

// BindColumn 实现 driver.Stmt。按名称绑定需要结果集已经存在。
func (s *Stmt) BindColumn(col driver.Column, b driver.ColumnBinding) error {
	if err := s.check(); err != nil {
		return err
	}
	if b.Dest == nil {
		return s.record(fmt.Errorf("%w: nil destination for column %s", driver.ErrInvalidColumn, col))
	}
	if name, byName := col.Name(); byName {
		if s.cols == nil {
			return s.record(fmt.Errorf("%w: cannot bind column %q before execute", driver.ErrNoResultSet, name))
		}
		if s.columnIndex(name) < 0 {
			return s.record(fmt.Errorf("%w: %q", driver.ErrInvalidColumn, name))
		}
	} else {
		idx, _ := col.Index()
		if idx < 1 || (s.cols != nil && idx > len(s.cols)) {
			return s.record(fmt.Errorf("%w: index %d", driver.ErrInvalidColumn, idx))
		}
	}
	s.columns[col] = b
	return s.ok()
}

func (s *Stmt) columnIndex(name string) int {
	for i, c := range s.cols {
		if c == name || strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func validParam(p driver.Param) bool {
	if _, named := p.Name(); named {
		return true
	}
	pos, _ := p.Pos()
	return pos >= 1
}

// BindParam 实现 driver.Stmt
func (s *Stmt) BindParam(p driver.Param, b driver.ParamBinding) error {
	if err := s.check(); err != nil {
		return err
	}
	if !validParam(p) || b.Source == nil {
		return s.record(fmt.Errorf("%w: %s", driver.ErrInvalidParam, p))
	}
	delete(s.values, p)
	s.params[p] = b
	return s.ok()
}

// BindValue 实现 driver.Stmt
func (s *Stmt) BindValue(p driver.Param, b driver.ValueBinding) error {
	if err := s.check(); err != nil {
		return err
	}
	if !validParam(p) {
		return s.record(fmt.Errorf("%w: %s", driver.ErrInvalidParam, p))
	}
	if _, err := coerce(b.Value, b.Type); err != nil {
		return s.record(err)
	}
	delete(s.params, p)
	s.values[p] = b
	return s.ok()
}

// SetAttribute 实现 driver.Stmt；语句只支持超时
func (s *Stmt) SetAttribute(attr driver.Attr, value any) error {
	if err := s.check(); err != nil {
		return err
	}
	if attr != driver.AttrTimeout {
		return s.record(fmt.Errorf("%w: %s", driver.ErrUnsupportedAttribute, attr))
	}
	d, err := toDuration(value)
	if err != nil {
		return s.record(err)
	}
	s.timeout = d
	s.attrs[attr] = value
	return s.ok()
}

// Attribute 实现 driver.Stmt
func (s *Stmt) Attribute(attr driver.Attr) (any, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if attr == driver.AttrTimeout {
		return s.timeout, nil
	}
	return nil, s.record(fmt.Errorf("%w: %s", driver.ErrUnsupportedAttribute, attr))
}

// SetFetchMode 实现 driver.Stmt
func (s *Stmt) SetFetchMode(mode driver.FetchMode) error {
	if err := s.check(); err != nil {
		return err
	}
	if mode.Kind == driver.FetchInto && mode.Target == nil {
		return s.record(fmt.Errorf("%w: fetch into requires a target", driver.ErrUnsupportedAttribute))
	}
	s.fetchMode = mode
	return s.ok()
}

// =============================================================================
// ▶️ 执行
// =============================================================================

// args 把绑定解析为 database/sql 参数：位置参数按位置排序，名称参数用 sql.Named
func (s *Stmt) args() ([]any, error) {
	type positional struct {
		pos int
		v   any
	}
	var (
		pos   []positional
		named []any
	)

	add := func(p driver.Param, v any) {
		if name, ok := p.Name(); ok {
			named = append(named, sql.Named(name, v))
			return
		}
		n, _ := p.Pos()
		pos = append(pos, positional{n, v})
	}

	for p, b := range s.params {
		if t, ok := b.Source.(driver.Target); ok && b.Output {
			add(p, sql.Out{Dest: t.Target(), In: true})
			continue
		}
		v, err := b.Source.BoundValue()
		if err != nil {
			return nil, fmt.Errorf("read parameter %s: %w", p, err)
		}
		if v, err = coerce(v, b.Type); err != nil {
			return nil, err
		}
		add(p, v)
	}
	for p, b := range s.values {
		v, err := coerce(b.Value, b.Type)
		if err != nil {
			return nil, err
		}
		add(p, v)
	}

	sort.Slice(pos, func(i, j int) bool { return pos[i].pos < pos[j].pos })
	out := make([]any, 0, len(pos)+len(named))
	for i, p := range pos {
		if p.pos != i+1 {
			return nil, fmt.Errorf("%w: positional parameter %d is not bound", driver.ErrInvalidParam, i+1)
		}
		out = append(out, p.v)
	}
	sort.Slice(named, func(i, j int) bool { return named[i].(sql.NamedArg).Name < named[j].(sql.NamedArg).Name })
	return append(out, named...), nil
}

// Execute 实现 driver.Stmt。args 非空时忽略已绑定的参数。
func (s *Stmt) Execute(ctx context.Context, args []any) error {
	if err := s.check(); err != nil {
		return err
	}
	s.closeRows()

	if len(args) == 0 {
		bound, err := s.args()
		if err != nil {
			return s.record(err)
		}
		args = bound
	}

	ctx, cancel := s.c.withTimeout(ctx, s.timeout)

	if s.returnsRows() {
		rows, err := s.queryContext(ctx, args)
		if err != nil {
			cancel()
			return s.record(err)
		}
		cols, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			cancel()
			return s.record(err)
		}
		colTypes, _ := rows.ColumnTypes()
		s.rows, s.cancel = rows, cancel
		s.cols, s.colTypes = cols, colTypes
		s.rowCount = 0
		s.executed = true
		return s.ok()
	}

	defer cancel()
	res, err := s.execContext(ctx, args)
	if err != nil {
		return s.record(err)
	}
	s.c.lastResult = res
	s.cols, s.colTypes = nil, nil
	s.rowCount, _ = res.RowsAffected()
	s.executed = true
	return s.ok()
}

func (s *Stmt) queryContext(ctx context.Context, args []any) (*sql.Rows, error) {
	if s.ps == nil {
		return s.c.q().QueryContext(ctx, s.query, args...)
	}
	return s.bound(ctx).QueryContext(ctx, args...)
}

func (s *Stmt) execContext(ctx context.Context, args []any) (sql.Result, error) {
	if s.ps == nil {
		return s.c.q().ExecContext(ctx, s.query, args...)
	}
	return s.bound(ctx).ExecContext(ctx, args...)
}

// bound 事务中执行预处理语句时转成事务内语句
func (s *Stmt) bound(ctx context.Context) *sql.Stmt {
	if s.c.tx != nil {
		return s.c.tx.StmtContext(ctx, s.ps)
	}
	return s.ps
}

var rowKeywords = []string{"SELECT", "WITH", "SHOW", "VALUES", "PRAGMA", "EXPLAIN", "DESCRIBE", "DESC", "TABLE", "CALL"}

func (s *Stmt) returnsRows() bool {
	switch s.kind {
	case driver.KindQuery:
		return true
	case driver.KindExec:
		return false
	}
	return looksLikeQuery(s.query)
}

// looksLikeQuery 按前导关键字或 RETURNING 子句判断语句是否返回结果集
func looksLikeQuery(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n(")
	for strings.HasPrefix(q, "--") || strings.HasPrefix(q, "/*") {
		if strings.HasPrefix(q, "--") {
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return false
			}
			q = strings.TrimLeft(q[i+1:], " \t\r\n(")
			continue
		}
		i := strings.Index(q, "*/")
		if i < 0 {
			return false
		}
		q = strings.TrimLeft(q[i+2:], " \t\r\n(")
	}

	word := q
	if i := strings.IndexAny(q, " \t\r\n(;"); i >= 0 {
		word = q[:i]
	}
	word = strings.ToUpper(word)
	for _, kw := range rowKeywords {
		if word == kw {
			return true
		}
	}
	return strings.Contains(strings.ToUpper(q), " RETURNING ")
}

// =============================================================================
// 📖 取数
// =============================================================================

// next 读取下一行；结果集耗尽时关闭游标
func (s *Stmt) next() (driver.Row, bool, error) {
	if err := s.check(); err != nil {
		return driver.Row{}, false, err
	}
	if s.rows == nil {
		if s.cols != nil {
			return driver.Row{}, false, nil
		}
		return driver.Row{}, false, s.record(driver.ErrNoResultSet)
	}

	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		if err != nil {
			return driver.Row{}, false, s.record(err)
		}
		return driver.Row{}, false, nil
	}

	raw := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return driver.Row{}, false, s.record(err)
	}
	for i, v := range raw {
		if b, ok := v.([]byte); ok {
			raw[i] = string(b)
		}
	}

	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = s.c.caseMode.Apply(c)
	}
	s.rowCount++
	s.lastErr = driver.ErrorInfo{}
	return driver.Row{Columns: names, Values: raw}, true, nil
}

// Fetch 实现 driver.Stmt，按当前取数模式处理结果行
func (s *Stmt) Fetch(context.Context) (driver.Row, bool, error) {
	row, ok, err := s.next()
	if err != nil || !ok {
		return row, ok, err
	}

	switch s.fetchMode.Kind {
	case driver.FetchBound:
		if err := s.assignBound(row); err != nil {
			return driver.Row{}, false, s.record(err)
		}
	case driver.FetchColumn:
		idx := s.fetchMode.Column
		if idx < 0 || idx >= row.Len() {
			return driver.Row{}, false, s.record(fmt.Errorf("%w: index %d", driver.ErrInvalidColumn, idx))
		}
		row = driver.Row{Columns: row.Columns[idx : idx+1], Values: row.Values[idx : idx+1]}
	case driver.FetchInto:
		if err := scanInto(s.fetchMode.Target, row); err != nil {
			return driver.Row{}, false, s.record(err)
		}
	}
	return row, true, nil
}

func (s *Stmt) assignBound(row driver.Row) error {
	for col, b := range s.columns {
		var i int
		if name, byName := col.Name(); byName {
			i = s.columnIndex(name)
		} else {
			idx, _ := col.Index()
			i = idx - 1
		}
		if i < 0 || i >= row.Len() {
			return fmt.Errorf("%w: %s", driver.ErrInvalidColumn, col)
		}
		if err := assignValue(b.Dest, row.Values[i]); err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
	}
	return nil
}

// FetchAll 实现 driver.Stmt
func (s *Stmt) FetchAll(ctx context.Context) ([]driver.Row, error) {
	var out []driver.Row
	for {
		row, ok, err := s.Fetch(ctx)
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
func (s *Stmt) FetchColumn(_ context.Context, idx int) (any, bool, error) {
	row, ok, err := s.next()
	if err != nil || !ok {
		return nil, ok, err
	}
	if idx < 0 || idx >= row.Len() {
		return nil, false, s.record(fmt.Errorf("%w: index %d", driver.ErrInvalidColumn, idx))
	}
	return row.Values[idx], true, nil
}

// FetchInto 实现 driver.Stmt
func (s *Stmt) FetchInto(_ context.Context, dest any) (bool, error) {
	row, ok, err := s.next()
	if err != nil || !ok {
		return ok, err
	}
	if err := scanInto(dest, row); err != nil {
		return false, s.record(err)
	}
	return true, nil
}

// =============================================================================
// 📊 元数据与游标
// =============================================================================

// ColumnCount 实现 driver.Stmt
func (s *Stmt) ColumnCount() int { return len(s.cols) }

// RowCount 实现 driver.Stmt：写操作为受影响行数，查询为已读取的行数
func (s *Stmt) RowCount() int64 { return s.rowCount }

// ColumnMeta 实现 driver.Stmt
func (s *Stmt) ColumnMeta(idx int) (driver.ColumnMeta, error) {
	if idx < 0 || idx >= len(s.cols) {
		return driver.ColumnMeta{}, s.record(fmt.Errorf("%w: index %d", driver.ErrInvalidColumn, idx))
	}
	meta := driver.ColumnMeta{Name: s.c.caseMode.Apply(s.cols[idx])}
	if idx < len(s.colTypes) && s.colTypes[idx] != nil {
		ct := s.colTypes[idx]
		meta.DatabaseType = ct.DatabaseTypeName()
		meta.Nullable, meta.NullableKnown = ct.Nullable()
		if n, ok := ct.Length(); ok {
			meta.Length = n
		}
		if p, sc, ok := ct.DecimalSize(); ok {
			meta.Precision, meta.Scale = p, sc
		}
	}
	return meta, nil
}

// NextRowset 实现 driver.Stmt
func (s *Stmt) NextRowset() (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	if s.rows == nil {
		return false, nil
	}
	if !s.rows.NextResultSet() {
		err := s.rows.Err()
		s.closeRows()
		if err != nil {
			return false, s.record(err)
		}
		return false, nil
	}
	cols, err := s.rows.Columns()
	if err != nil {
		return false, s.record(err)
	}
	s.cols = cols
	s.colTypes, _ = s.rows.ColumnTypes()
	s.rowCount = 0
	return true, s.ok()
}

// CloseCursor 实现 driver.Stmt
func (s *Stmt) CloseCursor() error {
	if err := s.check(); err != nil {
		return err
	}
	s.closeRows()
	return s.ok()
}

func (s *Stmt) closeRows() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// ErrorCode 实现 driver.Stmt
func (s *Stmt) ErrorCode() string { return s.lastErr.SQLState }

// ErrorInfo 实现 driver.Stmt
func (s *Stmt) ErrorInfo() driver.ErrorInfo { return s.lastErr }

// DebugDumpParams 实现 driver.Stmt
func (s *Stmt) DebugDumpParams() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SQL: [%d] %s\n", len(s.query), s.query)

	type entry struct {
		key  string
		line string
	}
	var entries []entry
	for p, pb := range s.params {
		entries = append(entries, entry{p.String(), fmt.Sprintf("Param: %s by=ref type=%s output=%t", p, pb.Type, pb.Output)})
	}
	for p, vb := range s.values {
		entries = append(entries, entry{p.String(), fmt.Sprintf("Param: %s by=value type=%s value=%v", p, vb.Type, vb.Value)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	fmt.Fprintf(&b, "Params:  %d\n", len(entries))
	for _, e := range entries {
		b.WriteString(e.line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Close 实现 driver.Stmt
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeRows()
	if s.ps != nil {
		return s.ps.Close()
	}
	return nil
}

var _ driver.Stmt = (*Stmt)(nil)
