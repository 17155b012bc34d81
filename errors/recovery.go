package errors

import (
	stderrors "errors"
	"runtime/debug"
	"sync"
	"time"
)

// SafeRun 执行阶段函数，将 panic 转换为 PanicError
func SafeRun(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Stage:     stage,
				Value:     r,
				Stack:     string(debug.Stack()),
				Timestamp: time.Now(),
			}
		}
	}()
	return fn()
}

// ErrorCollector 错误收集器
type ErrorCollector struct {
	errors []error
	mu     sync.Mutex
}

// NewErrorCollector 创建错误收集器
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Collect 收集错误，nil 被忽略
func (ec *ErrorCollector) Collect(err error) {
	if err == nil {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.errors = append(ec.errors, err)
}

// GetErrors 获取错误列表
func (ec *ErrorCollector) GetErrors() []error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	result := make([]error, len(ec.errors))
	copy(result, ec.errors)
	return result
}

// Len 错误数量
func (ec *ErrorCollector) Len() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.errors)
}

// Err 合并为单个错误
func (ec *ErrorCollector) Err() error {
	return stderrors.Join(ec.GetErrors()...)
}

// Clear 清除错误
func (ec *ErrorCollector) Clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.errors = ec.errors[:0]
}
