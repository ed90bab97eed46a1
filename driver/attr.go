package driver

import "strings"

// Attr 属性键
type Attr string

const (
	// AttrTimeout 单次调用超时（time.Duration）
	AttrTimeout Attr = "timeout"

	// AttrCase 结果列名大小写（CaseMode）
	AttrCase Attr = "case"

	// AttrDefaultFetchMode 新语句的默认取数模式（FetchMode）
	AttrDefaultFetchMode Attr = "default_fetch_mode"

	// AttrDriverName 驱动名（只读）
	AttrDriverName Attr = "driver_name"

	// AttrServerVersion 服务端版本（只读）
	AttrServerVersion Attr = "server_version"

	// AttrConnectionStatus 连接状态描述（只读）
	AttrConnectionStatus Attr = "connection_status"
)

const sessionVarPrefix = "session."

// SessionVar 会话变量属性，设置时驱动执行对应方言的 SET 语句
func SessionVar(name string) Attr {
	return Attr(sessionVarPrefix + name)
}

// SessionVar 返回会话变量名
func (a Attr) SessionVar() (string, bool) {
	if !strings.HasPrefix(string(a), sessionVarPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(string(a), sessionVarPrefix)
	return name, name != ""
}

// CaseMode 列名大小写转换
type CaseMode int

const (
	CaseNatural CaseMode = iota
	CaseLower
	CaseUpper
)

// Apply 按模式转换列名
func (m CaseMode) Apply(name string) string {
	switch m {
	case CaseLower:
		return strings.ToLower(name)
	case CaseUpper:
		return strings.ToUpper(name)
	default:
		return name
	}
}
