package logging

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface rather than on slog directly so tests
// can pass Nop() and production wiring can fan out with Multi.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var base atomic.Pointer[slog.Logger]

// SetBase installs the process-wide slog logger used by component loggers.
// Loggers created earlier pick up the new base on their next call.
func SetBase(logger *slog.Logger) {
	base.Store(logger)
}

func currentBase() *slog.Logger {
	if l := base.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &slogLogger{component: component}
}

// FromSlog adapts a specific slog logger, tagging it with component when set.
func FromSlog(logger *slog.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	return &slogLogger{component: component, fixed: logger}
}

type slogLogger struct {
	component string
	fixed     *slog.Logger
}

func (l *slogLogger) target() *slog.Logger {
	target := l.fixed
	if target == nil {
		target = currentBase()
	}
	if l.component != "" {
		target = target.With("component", l.component)
	}
	return target
}

func (l *slogLogger) Debug(format string, args ...any) {
	l.target().Debug(fmt.Sprintf(format, args...))
}

func (l *slogLogger) Info(format string, args ...any) {
	l.target().Info(fmt.Sprintf(format, args...))
}

func (l *slogLogger) Warn(format string, args ...any) {
	l.target().Warn(fmt.Sprintf(format, args...))
}

func (l *slogLogger) Error(format string, args ...any) {
	l.target().Error(fmt.Sprintf(format, args...))
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
