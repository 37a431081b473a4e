package async

import (
	"fmt"
	"runtime/debug"
)

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		report(logger, name, r)
	}
}

// PanicError is returned by Call when fn panicked.
type PanicError struct {
	Name  string
	Value any
}

func (e *PanicError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Call runs fn on the current goroutine and converts a panic into a
// *PanicError so fan-out workers can record it like any other failure.
func Call[T any](logger PanicLogger, name string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			report(logger, name, r)
			err = &PanicError{Name: name, Value: r}
		}
	}()
	return fn()
}

func report(logger PanicLogger, name string, r any) {
	if logger == nil {
		return
	}
	if name == "" {
		logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
		return
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
}
