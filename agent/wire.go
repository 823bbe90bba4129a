package agent

import (
	"bytes"
	"runtime"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/flate"
)

func goRuntimeVersion() string {
	return runtime.Version()
}

// envelope is the wire shape from spec.md §6: "{type, payload, timestamp}".
type envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

func newEnvelope(kind string, payload interface{}) *envelope {
	return &envelope{Type: kind, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

// registerPayload is the "→ register" payload from spec.md §6.
type registerPayload struct {
	APIKey         string          `json:"api_key"`
	AgentID        string          `json:"agent_id"`
	Hostname       string          `json:"hostname"`
	Runtime        string          `json:"runtime"`
	RuntimeVersion string          `json:"runtime_version"`
	AgentVersion   string          `json:"agent_version"`
	Environment    string          `json:"environment"`
	GitContext     *ReleaseContext `json:"git_context,omitempty"`
}

// heartbeatPayload is the "→ heartbeat" payload from spec.md §6.
type heartbeatPayload struct {
	Timestamp int64  `json:"timestamp"`
	AgentID   string `json:"agent_id"`
}

// exceptionPayload is the "→ exception" payload from spec.md §6, the
// ExceptionCapture flattened onto the wire schema with the agent/runtime
// identity fields the capture itself doesn't carry.
type exceptionPayload struct {
	ExceptionType   string                    `json:"exception_type"`
	Message         string                    `json:"message"`
	Fingerprint     string                    `json:"fingerprint"`
	StackTrace      []StackFrame              `json:"stack_trace"`
	LocalVariables  map[string]*CapturedValue `json:"local_variables"`
	MethodArguments map[string]*CapturedValue `json:"method_arguments"`
	CapturedAt      time.Time                 `json:"captured_at"`
	AgentID         string                    `json:"agent_id"`
	Environment     string                    `json:"environment"`
	Runtime         string                    `json:"runtime"`
	RuntimeVersion  string                    `json:"runtime_version"`
	FilePath        string                    `json:"file_path,omitempty"`
	FileName        string                    `json:"file_name,omitempty"`
	LineNumber      int                       `json:"line_number,omitempty"`
	MethodName      string                    `json:"method_name,omitempty"`
	ClassName       string                    `json:"class_name,omitempty"`
	GitContext      *ReleaseContext           `json:"git_context,omitempty"`
}

// breakpointHitPayload is the "→ breakpoint_hit" payload from spec.md §6.
type breakpointHitPayload struct {
	BreakpointID   string                    `json:"breakpoint_id"`
	AgentID        string                    `json:"agent_id"`
	CapturedAt     time.Time                 `json:"captured_at"`
	LocalVariables map[string]*CapturedValue `json:"local_variables"`
	StackTrace     []StackFrame              `json:"stack_trace"`
}

const (
	runtimeTag   = "go"
	agentVersion = "1.0.0"
)

func toExceptionPayload(cfg *Config, ec *ExceptionCapture) exceptionPayload {
	p := exceptionPayload{
		ExceptionType:   ec.ExceptionType,
		Message:         ec.Message,
		Fingerprint:     ec.Fingerprint,
		StackTrace:      ec.StackTrace,
		LocalVariables:  ec.LocalVariables,
		MethodArguments: ec.MethodArguments,
		CapturedAt:      ec.CapturedAt,
		AgentID:         cfg.AgentID,
		Environment:     cfg.Environment,
		Runtime:         runtimeTag,
		RuntimeVersion:  goRuntimeVersion(),
		GitContext:      cfg.ReleaseContext,
	}
	if len(ec.StackTrace) > 0 {
		top := ec.StackTrace[0]
		p.FilePath = top.FilePath
		p.FileName = top.FileName
		p.LineNumber = top.LineNumber
		p.MethodName = top.MethodName
		p.ClassName = top.ClassName
	}
	return p
}

func toBreakpointHitPayload(cfg *Config, bc *BreakpointCapture) breakpointHitPayload {
	return breakpointHitPayload{
		BreakpointID:   bc.BreakpointID,
		AgentID:        cfg.AgentID,
		CapturedAt:     bc.CapturedAt,
		LocalVariables: bc.LocalVariables,
		StackTrace:     bc.StackTrace,
	}
}

// compressionThreshold is spec.md's New-relative-to-spec transport
// optimization described in SPEC_FULL.md §4.G: envelopes whose serialized
// form exceeds this are sent as a compressed binary frame instead of text.
const compressionThreshold = 8 * 1024

// encodeEnvelope serializes env with sonic (matching the teacher's gin
// dependency on bytedance/sonic for JSON work) and reports whether the
// result should be sent as a compressed binary frame.
func encodeEnvelope(env *envelope) (data []byte, compressed bool, err error) {
	raw, err := sonic.Marshal(env)
	if err != nil {
		return nil, false, err
	}
	if len(raw) <= compressionThreshold {
		return raw, false, nil
	}

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return raw, false, nil
	}
	if _, err := fw.Write(raw); err != nil {
		return raw, false, nil
	}
	if err := fw.Close(); err != nil {
		return raw, false, nil
	}
	return buf.Bytes(), true, nil
}

// decodeInbound inflates a binary frame before JSON-decoding it; text
// frames are decoded directly. Symmetric with encodeEnvelope.
func decodeInbound(data []byte, isBinary bool) (*envelope, error) {
	if isBinary {
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(fr); err != nil {
			return nil, err
		}
		data = buf.Bytes()
	}
	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
