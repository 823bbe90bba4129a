package agent

import "time"

// CapturedValue is one node in a bounded tree produced by the value
// serializer. Exactly one of Children or ArrayElements is populated for a
// non-scalar, non-null value.
type CapturedValue struct {
	Name          string                    `json:"name"`
	Type          string                    `json:"type"`
	Value         string                    `json:"value"`
	IsNull        bool                      `json:"is_null"`
	IsTruncated   bool                      `json:"is_truncated"`
	Children      map[string]*CapturedValue `json:"children,omitempty"`
	ArrayElements []*CapturedValue          `json:"array_elements,omitempty"`
	ArrayLength   int                       `json:"array_length,omitempty"`
	HashCode      string                    `json:"hash_code,omitempty"`
}

// StackFrame is one entry in a captured stack trace.
type StackFrame struct {
	ClassName       string                    `json:"class_name"`
	MethodName      string                    `json:"method_name"`
	FileName        string                    `json:"file_name"`
	FilePath        string                    `json:"file_path,omitempty"`
	LineNumber      int                       `json:"line_number"`
	ColumnNumber    int                       `json:"column_number,omitempty"`
	IsNative        bool                      `json:"is_native"`
	SourceAvailable bool                      `json:"source_available"`
	LocalVariables  map[string]*CapturedValue `json:"local_variables,omitempty"`
}

// newStackFrame builds a StackFrame and derives SourceAvailable per spec:
// (file_name != "" && !is_native).
func newStackFrame(class, method, file, path string, line, col int, isNative bool) StackFrame {
	return StackFrame{
		ClassName:       class,
		MethodName:      method,
		FileName:        file,
		FilePath:        path,
		LineNumber:      line,
		ColumnNumber:    col,
		IsNative:        isNative,
		SourceAvailable: file != "" && !isNative,
	}
}

// ExceptionCapture is immutable once constructed by the exception capture
// builder (agent/exception.go).
type ExceptionCapture struct {
	ID              string                    `json:"id"`
	ExceptionType   string                    `json:"exception_type"`
	Message         string                    `json:"message"`
	Fingerprint     string                    `json:"fingerprint"`
	CapturedAt      time.Time                 `json:"captured_at"`
	StackTrace      []StackFrame              `json:"stack_trace"`
	LocalVariables  map[string]*CapturedValue `json:"local_variables"`
	MethodArguments map[string]*CapturedValue `json:"method_arguments"`
	MethodArgOrder  []string                  `json:"-"`

	// RequestContext is additive: HTTP/RPC metadata captured by the
	// instrumentation adapters (agent/ginrecover.go and siblings) when the
	// panic was recovered inside a request handler. Empty outside that path.
	RequestContext map[string]interface{} `json:"request_context,omitempty"`
}

// BreakpointCapture is produced by the breakpoint capture builder
// (agent/breakpoint_capture.go) when a registered probe fires.
type BreakpointCapture struct {
	BreakpointID   string                    `json:"breakpoint_id"`
	ClassName      string                    `json:"class_name"`
	LineNumber     int                       `json:"line_number"`
	CapturedAt     time.Time                 `json:"captured_at"`
	StackTrace     []StackFrame              `json:"stack_trace"`
	LocalVariables map[string]*CapturedValue `json:"local_variables"`

	// TraceID/SpanID are additive beyond spec.md's BreakpointCapture shape,
	// mirroring the teacher's CheckAndCaptureWithContext span correlation.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

const maxStackFrames = 50

// methodArguments constructs an ordered method-argument map, preserving the
// declared/positional ordering required by spec.md §3.
type methodArguments struct {
	order  []string
	values map[string]*CapturedValue
}

func newMethodArguments() *methodArguments {
	return &methodArguments{values: make(map[string]*CapturedValue)}
}

func (m *methodArguments) set(name string, v *CapturedValue) {
	if _, exists := m.values[name]; !exists {
		m.order = append(m.order, name)
	}
	m.values[name] = v
}
