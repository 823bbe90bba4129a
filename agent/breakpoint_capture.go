package agent

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// buildBreakpointCapture implements component D (spec.md §4.D). The stack
// trace is the current goroutine's stack with the same agent-internal /
// runtime-scaffold trimming rule as the exception builder.
func buildBreakpointCapture(s *serializer, ctx context.Context, breakpointID, className string, line int, receiver interface{}, args []interface{}) *BreakpointCapture {
	bc := &BreakpointCapture{
		BreakpointID: breakpointID,
		ClassName:    className,
		LineNumber:   line,
		CapturedAt:   time.Now().UTC(),
		StackTrace:   captureStackFrames(3),
	}

	bc.LocalVariables = map[string]*CapturedValue{}
	if receiver != nil {
		for field, cv := range captureReceiverFields(s, receiver) {
			bc.LocalVariables[field] = cv
		}
	}
	for i, a := range args {
		name := argName(i)
		bc.LocalVariables[name] = s.capture(name, a, 0)
	}

	if ctx != nil {
		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			bc.TraceID = span.SpanContext().TraceID().String()
			bc.SpanID = span.SpanContext().SpanID().String()
		}
	}

	return bc
}

// argName implements spec.md §4.D: "Arguments serialized as arg0, arg1,
// ... (parameter names generally unavailable at this call site)".
func argName(i int) string {
	return "arg" + strconv.Itoa(i)
}
