package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorType 错误类型
type ErrorType string

const (
	// 事件源读取失败，下一个周期重试
	ErrorTypeSourceRead ErrorType = "source_read"
	// 数据形态异常，钳位或丢弃后继续
	ErrorTypeDataAnomaly ErrorType = "data_anomaly"
	// 并发冲突，直接跳过
	ErrorTypeConcurrency ErrorType = "concurrency"
	// 持久化写入失败
	ErrorTypeStorageWrite ErrorType = "storage_write"
	// 配置错误
	ErrorTypeConfig ErrorType = "config"
	// 阶段内 panic
	ErrorTypePanic ErrorType = "panic"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity int

const (
	SeverityLow      ErrorSeverity = iota // 可忽略
	SeverityMedium                        // 功能降级
	SeverityHigh                          // 需要干预
	SeverityCritical                      // 系统停止
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "critical"
	}
}

// RecoverableError 可恢复错误
type RecoverableError struct {
	Type      ErrorType
	Severity  ErrorSeverity
	Message   string
	Cause     error
	Context   map[string]interface{}
	Timestamp time.Time
	CanRetry  bool
}

func (e *RecoverableError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteByte(']')
	}
	return b.String()
}

func (e *RecoverableError) Unwrap() error {
	return e.Cause
}

// With 附加上下文
func (e *RecoverableError) With(key string, value interface{}) *RecoverableError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(t ErrorType, sev ErrorSeverity, retry bool, cause error, format string, args ...interface{}) *RecoverableError {
	return &RecoverableError{
		Type:      t,
		Severity:  sev,
		Message:   fmt.Sprintf(format, args...),
		Cause:     cause,
		Timestamp: time.Now(),
		CanRetry:  retry,
	}
}

// NewSourceReadError 事件查询失败
func NewSourceReadError(cause error, format string, args ...interface{}) *RecoverableError {
	return newError(ErrorTypeSourceRead, SeverityMedium, true, cause, format, args...)
}

// NewDataAnomalyError 数据异常
func NewDataAnomalyError(format string, args ...interface{}) *RecoverableError {
	return newError(ErrorTypeDataAnomaly, SeverityLow, false, nil, format, args...)
}

// NewConcurrencyError 并发冲突
func NewConcurrencyError(format string, args ...interface{}) *RecoverableError {
	return newError(ErrorTypeConcurrency, SeverityLow, false, nil, format, args...)
}

// NewStorageWriteError 写入失败
func NewStorageWriteError(cause error, stage string, format string, args ...interface{}) *RecoverableError {
	return newError(ErrorTypeStorageWrite, SeverityHigh, true, cause, format, args...).With("stage", stage)
}

// NewConfigError 配置错误
func NewConfigError(cause error, format string, args ...interface{}) *RecoverableError {
	return newError(ErrorTypeConfig, SeverityCritical, false, cause, format, args...)
}

// IsType reports whether any error in the chain is a RecoverableError of type t
func IsType(err error, t ErrorType) bool {
	var re *RecoverableError
	if stderrors.As(err, &re) {
		return re.Type == t
	}
	var pe *PanicError
	return t == ErrorTypePanic && stderrors.As(err, &pe)
}

// PanicError panic 错误
type PanicError struct {
	Stage     string
	Value     interface{}
	Stack     string
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Stage, e.Value)
}
