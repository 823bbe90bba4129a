package agent

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"
)

// methodDescriptor identifies the method a capture was taken inside,
// matching spec.md §4.C's "method descriptor (declaring type name + name +
// parameters with names when available)".
type methodDescriptor struct {
	DeclaringType string
	MethodName    string
	ParamNames    []string // empty entries fall back to "arg<i>"
}

// buildExceptionCapture implements component C exactly per spec.md §4.C.
// skipFrames is the number of runtime.Callers frames to skip so the
// captured stack trace starts at the caller of the instrumentation point,
// not inside this package.
func buildExceptionCapture(s *serializer, err error, receiver interface{}, desc methodDescriptor, args []interface{}, skipFrames int) *ExceptionCapture {
	ec := &ExceptionCapture{
		ID:         newCaptureID(),
		CapturedAt: time.Now().UTC(),
	}

	ec.ExceptionType = exceptionTypeName(err)
	ec.Message = err.Error()

	ec.StackTrace = captureStackFrames(skipFrames + 1)

	ec.MethodArguments = make(map[string]*CapturedValue, len(args))
	for i, a := range args {
		paramName := fmt.Sprintf("arg%d", i)
		if i < len(desc.ParamNames) && desc.ParamNames[i] != "" {
			paramName = desc.ParamNames[i]
		}
		ec.MethodArgOrder = append(ec.MethodArgOrder, paramName)
		ec.MethodArguments[paramName] = s.capture(paramName, a, 0)
	}

	if receiver != nil {
		ec.LocalVariables = captureReceiverFields(s, receiver)
	} else {
		ec.LocalVariables = map[string]*CapturedValue{}
	}

	ec.Fingerprint = computeFingerprint(ec.ExceptionType, desc, ec.StackTrace)

	return ec
}

// exceptionTypeName is the Go analogue of "fully-qualified runtime type of
// throwable". For a wrapped panic value that isn't itself an error this
// still resolves via reflect.TypeOf on the original recovered value
// (callers construct err via recoveredError, see agent/requestcontext.go).
func exceptionTypeName(err error) string {
	if pv, ok := err.(*panicValue); ok {
		if t := reflect.TypeOf(pv.value); t != nil {
			return t.String()
		}
		return "panic"
	}
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	if t.Kind() == reflect.Ptr {
		return "*" + t.Elem().String()
	}
	return t.String()
}

// captureReceiverFields enumerates the receiver's instance fields exactly
// as serializer.captureStruct does, but keys them "this.<field>" into a
// flat map per spec.md §4.C ("receiver fields keyed this.<field>").
func captureReceiverFields(s *serializer, receiver interface{}) map[string]*CapturedValue {
	out := map[string]*CapturedValue{}
	captured := s.capture("this", receiver, 0)
	if captured == nil || captured.IsNull {
		return out
	}
	for field, cv := range captured.Children {
		out["this."+field] = cv
	}
	if captured.IsTruncated && len(captured.Children) == 0 {
		// Not a struct (e.g. scalar receiver) — nothing to flatten.
		return out
	}
	return out
}

// captureStackFrames walks the current goroutine's stack via
// runtime.Callers/runtime.CallersFrames, trims the leading agent-internal
// and runtime-scaffold frames, and keeps at most maxStackFrames — spec.md
// §4.C/§4.D and §6's "mask off its own namespace... and compiler-synthetic
// classes".
func captureStackFrames(skip int) []StackFrame {
	const maxPCs = 64
	pcs := make([]uintptr, maxPCs)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []StackFrame
	trimming := true
	for {
		frame, more := frames.Next()

		if trimming && isAgentInternalFrame(frame.Function) {
			if !more {
				break
			}
			continue
		}
		trimming = false

		className, methodName := splitFunctionName(frame.Function)
		isNative := frame.File == ""
		out = append(out, newStackFrame(
			className, methodName, baseFileName(frame.File), frame.File,
			frame.Line, 0, isNative,
		))

		if len(out) >= maxStackFrames || !more {
			break
		}
	}
	return out
}

// isAgentInternalFrame drops frames from this package and from the Go
// runtime's own panic/recover scaffolding, the Go analogue of spec.md §6's
// "agent's own namespace... core runtime packages... reflection
// subpackages".
func isAgentInternalFrame(function string) bool {
	return strings.HasPrefix(function, "github.com/aivorynet/agent-go/agent.") ||
		strings.HasPrefix(function, "runtime.gopanic") ||
		strings.HasPrefix(function, "runtime.gorecover") ||
		strings.HasPrefix(function, "runtime.deferreturn") ||
		strings.HasPrefix(function, "runtime.call") ||
		strings.HasPrefix(function, "reflect.")
}

func splitFunctionName(full string) (class, method string) {
	idx := strings.LastIndex(full, ".")
	if idx == -1 {
		return full, full
	}
	return full[:idx], full[idx+1:]
}

func baseFileName(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}

// computeFingerprint implements spec.md §4.C: first 16 hex chars of
// SHA-256 over the textual concatenation of exception type, declaring
// method, and up to the first 5 frames' class.method:line.
func computeFingerprint(exceptionType string, desc methodDescriptor, frames []StackFrame) string {
	var sb strings.Builder
	sb.WriteString(exceptionType)
	sb.WriteString(":")
	sb.WriteString(desc.DeclaringType)
	sb.WriteString(".")
	sb.WriteString(desc.MethodName)

	limit := len(frames)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		f := frames[i]
		sb.WriteString(fmt.Sprintf(":%s.%s:%d", f.ClassName, f.MethodName, f.LineNumber))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	hexSum := hex.EncodeToString(sum[:])
	if len(hexSum) >= 16 {
		return hexSum[:16]
	}

	// Hashing should never fail for a fixed-size SHA-256 sum, but spec.md
	// §4.C requires a fallback identifier if it somehow does.
	return randomHex16()
}

func randomHex16() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(buf)
}
