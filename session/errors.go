package session

import (
	"errors"
	"fmt"
)

// ErrorCode 会话层错误码
type ErrorCode string

const (
	CodeNotConnected       ErrorCode = "NOT_CONNECTED"
	CodeReconstructFailed  ErrorCode = "RECONSTRUCT_FAILED"
	CodeStatementClosed    ErrorCode = "STATEMENT_CLOSED"
	CodeReconnectThrottled ErrorCode = "RECONNECT_THROTTLED"
)

// 哨兵错误，配合 errors.Is 按错误码比较
var (
	ErrNotConnected       = NewError(CodeNotConnected, "not connected")
	ErrReconstructFailed  = NewError(CodeReconstructFailed, "statement reconstruction failed")
	ErrStatementClosed    = NewError(CodeStatementClosed, "statement is closed")
	ErrReconnectThrottled = NewError(CodeReconnectThrottled, "auto-reconnect throttled")
)

// Error 会话层自身的失败。驱动错误原样返回，只有语句重建失败时作为 Cause 附带。
type Error struct {
	Code    ErrorCode
	Message string
	Op      string
	Cause   error
}

// NewError 创建错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 错误码相同即视为同一类错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithOp 返回带操作名的副本
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

// WithCause 返回带原因的副本
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// GetErrorCode 提取会话层错误码
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
