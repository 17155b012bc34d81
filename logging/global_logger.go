package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the logging level
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger provides leveled logging over a standard library writer
type Logger struct {
	level  atomic.Int32
	logger *log.Logger
	closer io.Closer
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// NewLogger creates a logger writing to logFile, or to stderr when logFile is empty
func NewLogger(levelStr string, logFile string) (*Logger, error) {
	if logFile == "" {
		return NewWriterLogger(levelStr, os.Stderr), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
	}

	l := NewWriterLogger(levelStr, file)
	l.closer = file
	return l, nil
}

// NewWriterLogger creates a logger on an arbitrary writer
func NewWriterLogger(levelStr string, w io.Writer) *Logger {
	l := &Logger{logger: log.New(w, "", log.LstdFlags)}
	l.level.Store(int32(ParseLevel(levelStr)))
	return l
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return NewWriterLogger("error", io.Discard)
}

// ParseLevel parses a log level string
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the level at runtime
func (l *Logger) SetLevel(levelStr string) {
	l.level.Store(int32(ParseLevel(levelStr)))
}

func (l *Logger) enabled(level LogLevel) bool {
	return LogLevel(l.level.Load()) <= level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	if l.enabled(LevelDebug) {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.enabled(LevelDebug) {
		l.logger.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	if l.enabled(LevelInfo) {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.enabled(LevelInfo) {
		l.logger.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	if l.enabled(LevelWarn) {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.enabled(LevelWarn) {
		l.logger.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	if l.enabled(LevelError) {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.enabled(LevelError) {
		l.logger.Printf("[ERROR] "+format, args...)
	}
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// InitLogger configures the global logger. When debug is set and a file is
// used, output is mirrored to stderr as well.
func InitLogger(logLevel, logFile string, debug bool) error {
	l, err := NewLogger(logLevel, logFile)
	if err != nil {
		return err
	}
	if debug && logFile != "" {
		l.logger.SetOutput(io.MultiWriter(l.logger.Writer(), os.Stderr))
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = l
	globalMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// GetGlobalLogger returns the global logger, falling back to stderr at info level
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewWriterLogger("info", os.Stderr)
	}
	return globalLogger
}

// Global convenience functions for logging
func LogInfof(format string, args ...interface{}) {
	GetGlobalLogger().Infof(format, args...)
}

func LogDebugf(format string, args ...interface{}) {
	GetGlobalLogger().Debugf(format, args...)
}

func LogWarnf(format string, args ...interface{}) {
	GetGlobalLogger().Warnf(format, args...)
}

func LogErrorf(format string, args ...interface{}) {
	GetGlobalLogger().Errorf(format, args...)
}
