package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// 🏷️ 列与参数标识
// =============================================================================

// Column 列标识：从 1 开始的下标或列名
type Column struct {
	index int
	name  string
}

// ColumnIndex 按下标（从 1 开始）标识列
func ColumnIndex(i int) Column { return Column{index: i} }

// ColumnName 按名称标识列
func ColumnName(name string) Column { return Column{name: name} }

// Index 返回列下标；按名称标识时 ok 为 false
func (c Column) Index() (int, bool) { return c.index, c.name == "" }

// Name 返回列名；按下标标识时 ok 为 false
func (c Column) Name() (string, bool) { return c.name, c.name != "" }

func (c Column) String() string {
	if c.name != "" {
		return c.name
	}
	return strconv.Itoa(c.index)
}

// Param 参数标识：从 1 开始的位置或名称
//
// 名称会去掉前导冒号，因此 ParamName(":id") 与 ParamName("id") 相同。
type Param struct {
	pos  int
	name string
}

// ParamPos 按位置（从 1 开始）标识参数
func ParamPos(i int) Param { return Param{pos: i} }

// ParamName 按名称标识参数
func ParamName(name string) Param { return Param{name: strings.TrimPrefix(name, ":")} }

// Pos 返回参数位置；按名称标识时 ok 为 false
func (p Param) Pos() (int, bool) { return p.pos, p.name == "" }

// Name 返回去掉冒号的参数名；按位置标识时 ok 为 false
func (p Param) Name() (string, bool) { return p.name, p.name != "" }

func (p Param) String() string {
	if p.name != "" {
		return ":" + p.name
	}
	return strconv.Itoa(p.pos)
}

// =============================================================================
// 📎 绑定参数
// =============================================================================

// ParamType 绑定时声明的数据类型
type ParamType int

const (
	ParamAuto ParamType = iota
	ParamNull
	ParamInt
	ParamStr
	ParamBool
	ParamFloat
	ParamLOB
)

func (t ParamType) String() string {
	switch t {
	case ParamNull:
		return "null"
	case ParamInt:
		return "int"
	case ParamStr:
		return "str"
	case ParamBool:
		return "bool"
	case ParamFloat:
		return "float"
	case ParamLOB:
		return "lob"
	default:
		return "auto"
	}
}

// ColumnBinding 列绑定的完整参数
//
// Dest 是调用方持有的指针，重放时绑定的仍是同一个指针。
type ColumnBinding struct {
	Dest   any
	Type   ParamType
	MaxLen int
}

// ParamBinding 按引用绑定参数
type ParamBinding struct {
	// Source 在执行时提供参数值
	Source Binder
	Type   ParamType
	Length int
	// Output 为 true 时把 Source 的目标指针作为输出参数交给驱动
	Output bool
}

// ValueBinding 按值绑定参数
type ValueBinding struct {
	Value any
	Type  ParamType
}

// =============================================================================
// 📤 取数模式与语句选项
// =============================================================================

// FetchKind 取数方式
type FetchKind int

const (
	// FetchDefault 返回同时带列名与值的 Row
	FetchDefault FetchKind = iota
	// FetchBound 把每行写入已绑定的列变量
	FetchBound
	// FetchColumn 只取 Column 指定的单列
	FetchColumn
	// FetchInto 把每行写入 Target 指向的结构体
	FetchInto
)

// FetchMode 取数模式
type FetchMode struct {
	Kind   FetchKind
	Column int
	Target any
}

// StatementKind 语句是否返回结果集
type StatementKind int

const (
	// KindAuto 由驱动按语句前导关键字判断
	KindAuto StatementKind = iota
	// KindQuery 返回结果集
	KindQuery
	// KindExec 不返回结果集
	KindExec
)

// StatementOptions 预处理与直接查询的可选参数
type StatementOptions struct {
	Kind      StatementKind
	FetchMode *FetchMode
	// Timeout 单次执行超时，0 表示沿用连接设置
	Timeout time.Duration
}

// =============================================================================
// 📄 结果与元数据
// =============================================================================

// Row 一行结果
type Row struct {
	Columns []string
	Values  []any
}

// Len 返回列数
func (r Row) Len() int { return len(r.Values) }

// Get 按列名取值
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map 返回列名到值的映射
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		if i < len(r.Values) {
			m[c] = r.Values[i]
		}
	}
	return m
}

// ColumnMeta 列元数据
type ColumnMeta struct {
	Name          string
	DatabaseType  string
	Nullable      bool
	NullableKnown bool
	Length        int64
	Precision     int64
	Scale         int64
}

// ErrorInfo PDO 风格的错误信息
type ErrorInfo struct {
	SQLState string
	Code     string
	Message  string
}

// IsZero 是否没有错误
func (e ErrorInfo) IsZero() bool {
	return e.SQLState == "" && e.Code == "" && e.Message == ""
}

func (e ErrorInfo) String() string {
	if e.IsZero() {
		return "00000"
	}
	return fmt.Sprintf("SQLSTATE[%s] %s: %s", e.SQLState, e.Code, e.Message)
}
