package fault

import (
	"fmt"
	"runtime"
)

// PanicError carries a recovered panic value and the stack of the panicking
// goroutine.
type PanicError struct {
	Value   any
	callers []uintptr
}

// NewPanicError wraps a value returned by recover. skip is the number of
// frames above the caller to omit from the captured stack.
func NewPanicError(value any, skip int) *PanicError {
	return &PanicError{Value: value, callers: Callers(skip + 1)}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// StackTrace implements StackTracer.
func (e *PanicError) StackTrace() []uintptr {
	return e.callers
}

// Callers captures the program counters of the calling goroutine, omitting
// skip frames above the caller of Callers.
func Callers(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}
