package driver

import (
	"context"
	"errors"
	"maps"
	"slices"
)

// =============================================================================
// 🔌 句柄契约
// =============================================================================

var (
	// ErrUnsupportedAttribute 驱动不识别该属性
	ErrUnsupportedAttribute = errors.New("driver: unsupported attribute")

	// ErrReadOnlyAttribute 属性只读
	ErrReadOnlyAttribute = errors.New("driver: attribute is read-only")

	// ErrNoResultSet 当前没有结果集（例如在 execute 之前按列名绑定列）
	ErrNoResultSet = errors.New("driver: no result set")

	// ErrInvalidColumn 列标识越界或不存在
	ErrInvalidColumn = errors.New("driver: invalid column")

	// ErrInvalidParam 参数标识非法
	ErrInvalidParam = errors.New("driver: invalid parameter")

	// ErrClosed 句柄已关闭
	ErrClosed = errors.New("driver: handle is closed")
)

// ConnectConfig 建立连接所需的不可变参数
type ConnectConfig struct {
	// DSN 地址/数据源名称
	DSN string

	// Username 用户名（可选）
	Username string

	// Password 密码（可选）
	Password string

	// Options 构造时应用到新句柄上的属性
	Options map[Attr]any
}

// OptionKeys 按键名排序的构造选项，驱动按此顺序应用，保证每次重连行为一致
func (c ConnectConfig) OptionKeys() []Attr {
	return slices.Sorted(maps.Keys(c.Options))
}

// Driver 根据连接参数建立新的物理连接
type Driver interface {
	Open(ctx context.Context, cfg ConnectConfig) (Conn, error)
}

// Conn 一个已打开的连接句柄
type Conn interface {
	// Prepare 预处理一条语句
	Prepare(ctx context.Context, query string, opts StatementOptions) (Stmt, error)

	// Query 直接执行查询，返回一个已执行的语句句柄
	Query(ctx context.Context, query string, opts StatementOptions) (Stmt, error)

	// Exec 执行语句并返回受影响行数
	Exec(ctx context.Context, query string) (int64, error)

	SetAttribute(attr Attr, value any) error
	Attribute(attr Attr) (any, error)

	BeginTx(ctx context.Context) error
	Commit() error
	Rollback() error
	InTransaction() bool

	// Quote 按驱动方言为字面量加引号
	Quote(s string) (string, error)

	// LastInsertID 返回最近插入的行 ID，name 为序列名（可为空）
	LastInsertID(ctx context.Context, name string) (string, error)

	ErrorCode() string
	ErrorInfo() ErrorInfo

	// Close 释放句柄并断开物理连接
	Close() error
}

// Stmt 一个预处理或已执行的语句句柄
type Stmt interface {
	BindColumn(col Column, b ColumnBinding) error
	BindParam(p Param, b ParamBinding) error
	BindValue(p Param, b ValueBinding) error

	SetAttribute(attr Attr, value any) error
	Attribute(attr Attr) (any, error)
	SetFetchMode(mode FetchMode) error

	// Execute 执行语句；args 非空时仅用于本次执行，替代已绑定参数
	Execute(ctx context.Context, args []any) error

	// Fetch 取下一行；结果集耗尽时 ok 为 false
	Fetch(ctx context.Context) (row Row, ok bool, err error)
	FetchAll(ctx context.Context) ([]Row, error)
	FetchColumn(ctx context.Context, idx int) (value any, ok bool, err error)
	FetchInto(ctx context.Context, dest any) (ok bool, err error)

	ColumnCount() int
	RowCount() int64
	ColumnMeta(idx int) (ColumnMeta, error)
	NextRowset() (bool, error)
	CloseCursor() error

	ErrorCode() string
	ErrorInfo() ErrorInfo
	DebugDumpParams() string

	Close() error
}
