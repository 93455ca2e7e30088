package logger

import (
	"errors"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger Logger
)

// ErrAlreadyInitialized is returned by Init when a logger is installed.
var ErrAlreadyInitialized = errors.New("logger already initialized")

// Init installs the process-wide logger.
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil {
		return ErrAlreadyInitialized
	}

	l, err := NewSlogLogger(config)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// Get returns the process-wide logger, or a NullLogger before Init.
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()

	if defaultLogger == nil {
		return NullLogger{}
	}
	return defaultLogger
}

// With returns a child of the process-wide logger.
func With(args ...any) Logger {
	return Get().With(args...)
}

// Sync flushes the process-wide logger.
func Sync() error {
	return Get().Sync()
}

// Shutdown closes the process-wide logger. Calling it twice is harmless.
func Shutdown() error {
	mu.Lock()
	l := defaultLogger
	defaultLogger = nil
	mu.Unlock() // 先釋放鎖再關閉 writer，避免死結

	if l == nil {
		return nil
	}
	return l.Shutdown()
}

// NullLogger discards everything.
type NullLogger struct{}

func (NullLogger) Debug(string, ...any)  {}
func (NullLogger) Info(string, ...any)   {}
func (NullLogger) Warn(string, ...any)   {}
func (NullLogger) Error(string, ...any)  {}
func (n NullLogger) With(...any) Logger  { return n }
func (NullLogger) Sync() error           { return nil }
func (NullLogger) Shutdown() error       { return nil }
