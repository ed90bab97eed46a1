package session

import (
	"context"
	"time"

	"github.com/BaSui01/sessiondb/driver"
)

// Connection 会话连接的完整能力集
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	IsConnected() bool
	IsAlive(ctx context.Context, cacheFor time.Duration) (bool, error)

	ErrorCode() string
	ErrorInfo() driver.ErrorInfo
	Attribute(ctx context.Context, attr driver.Attr) (any, error)
	SetAttribute(ctx context.Context, attr driver.Attr, value any) error

	InTransaction(ctx context.Context) (bool, error)
	BeginTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Quote(ctx context.Context, s string) (string, error)
	Prepare(ctx context.Context, query string, opts ...StatementOption) (*Stmt, error)
	Query(ctx context.Context, query string, opts ...StatementOption) (*Stmt, error)
	Exec(ctx context.Context, query string) (int64, error)
	LastInsertID(ctx context.Context, name string) (string, error)

	Close() error
}

// Statement 语句包装的完整能力集
type Statement interface {
	BindColumn(ctx context.Context, col driver.Column, b driver.ColumnBinding) error
	BindParam(ctx context.Context, p driver.Param, b driver.ParamBinding) error
	BindValue(ctx context.Context, p driver.Param, b driver.ValueBinding) error
	SetAttribute(ctx context.Context, attr driver.Attr, value any) error
	Attribute(ctx context.Context, attr driver.Attr) (any, error)
	SetFetchMode(ctx context.Context, mode driver.FetchMode) error

	Execute(ctx context.Context, args ...any) error
	Fetch(ctx context.Context) (driver.Row, bool, error)
	FetchAll(ctx context.Context) ([]driver.Row, error)
	FetchColumn(ctx context.Context, idx int) (any, bool, error)
	FetchInto(ctx context.Context, dest any) (bool, error)

	ColumnCount(ctx context.Context) (int, error)
	RowCount(ctx context.Context) (int64, error)
	ColumnMeta(ctx context.Context, idx int) (driver.ColumnMeta, error)
	NextRowset(ctx context.Context) (bool, error)
	CloseCursor(ctx context.Context) error

	ErrorCode() string
	ErrorInfo() driver.ErrorInfo
	DebugDumpParams() string

	Close() error
}

var (
	_ Connection = (*Conn)(nil)
	_ Statement  = (*Stmt)(nil)
)
