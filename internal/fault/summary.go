package fault

import (
	"errors"
	"reflect"
	"runtime"
	"strings"

	"github.com/V4T54L/faultline/internal/domain"
)

// StackTracer is implemented by errors that remember where they were created.
type StackTracer interface {
	StackTrace() []uintptr
}

// Summarize describes err and its cause chain. Frames come from err when it
// implements StackTracer; otherwise fallback is used for the outermost error.
func Summarize(err error, fallback []uintptr) domain.FaultSummary {
	if err == nil {
		return domain.FaultSummary{}
	}
	root := summarizeOne(err, fallback)
	cur := &root
	inner := errors.Unwrap(err)
	for depth := 1; inner != nil && depth < maxUnwrapDepth; depth++ {
		next := summarizeOne(inner, nil)
		cur.InnerError = &next
		cur = cur.InnerError
		inner = errors.Unwrap(inner)
	}
	return root
}

// StackOf returns the stack of the first error in err's chain that carries one.
func StackOf(err error) []uintptr {
	var st StackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}
	return nil
}

func summarizeOne(err error, fallback []uintptr) domain.FaultSummary {
	pcs := fallback
	if st, ok := err.(StackTracer); ok && len(st.StackTrace()) > 0 {
		pcs = st.StackTrace()
	}
	return domain.FaultSummary{
		ClassName:  TypeName(err),
		Message:    err.Error(),
		StackTrace: Frames(pcs),
	}
}

// TypeName returns the Go type of err as written in source, e.g. "*fs.PathError".
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	return reflect.TypeOf(err).String()
}

// Frames resolves program counters into stack frames.
func Frames(pcs []uintptr) []domain.StackFrame {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]domain.StackFrame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			class, method := splitFunction(frame.Function)
			out = append(out, domain.StackFrame{
				LineNumber: frame.Line,
				ClassName:  class,
				MethodName: method,
				FileName:   frame.File,
			})
		}
		if !more {
			break
		}
	}
	return out
}

// splitFunction splits "github.com/a/b.(*T).M" into "github.com/a/b.(*T)" and "M".
func splitFunction(fn string) (string, string) {
	slash := strings.LastIndex(fn, "/")
	dot := strings.LastIndex(fn[slash+1:], ".")
	if dot < 0 {
		return "", fn
	}
	dot += slash + 1
	return fn[:dot], fn[dot+1:]
}
