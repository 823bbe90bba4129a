package agent

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

// nativeDedup implements spec.md §4.E's native-subagent dedup window: a
// 100ms per-identity window, pruned lazily once the map exceeds 1000
// entries, mirroring the interception controller's per-thread guard but
// keyed globally since the native path has no call-stack frame to guard
// at.
type nativeDedup struct {
	mu   sync.Mutex
	seen map[uintptr]time.Time
}

const (
	nativeDedupWindow  = 100 * time.Millisecond
	nativeDedupMaxSize = 1000
)

func newNativeDedup() *nativeDedup {
	return &nativeDedup{seen: make(map[uintptr]time.Time)}
}

// allow reports whether identity should produce a capture now. The time is
// recorded only when the capture is allowed, so a suppressed repeat does
// not extend the window.
func (d *nativeDedup) allow(identity uintptr) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[identity]; ok && now.Sub(last) < nativeDedupWindow {
		return false
	}
	d.seen[identity] = now

	if len(d.seen) > nativeDedupMaxSize {
		for k, t := range d.seen {
			if now.Sub(t) >= nativeDedupWindow {
				delete(d.seen, k)
			}
		}
	}
	return true
}

// IngestNativeCapture implements spec.md §6's on_native_exception contract
// for a subagent that already parsed its own stack but wants this agent's
// dedup/sampling/transport machinery. variablesJSON top-level keys either
// name global locals directly or follow the "frame_<i>_<class>.<method>"
// convention for per-frame locals, which are lifted into the matching
// StackFrame's LocalVariables.
func (a *Agent) IngestNativeCapture(location, variablesJSON string, err error) {
	if err == nil {
		return
	}

	identity := exceptionIdentity(err)
	if identity != 0 && !a.nativeDedup.allow(identity) {
		return
	}
	if !a.cfg.ShouldSample() {
		return
	}

	className, methodName := splitLocation(location)
	ec := &ExceptionCapture{
		ID:              newCaptureID(),
		ExceptionType:   exceptionTypeName(err),
		Message:         err.Error(),
		CapturedAt:      time.Now().UTC(),
		LocalVariables:  map[string]*CapturedValue{},
		MethodArguments: map[string]*CapturedValue{},
	}

	frameLocals, globals := parseNativeVariables(a.serializer, variablesJSON)
	ec.LocalVariables = globals

	frame := newStackFrame(className, methodName, "", "", 0, 0, false)
	frame.LocalVariables = frameLocals[location]
	ec.StackTrace = []StackFrame{frame}
	for key, vars := range frameLocals {
		if key == location {
			continue
		}
		ec.StackTrace = append(ec.StackTrace, newStackFrame(key, "", "", "", 0, 0, false))
		ec.StackTrace[len(ec.StackTrace)-1].LocalVariables = vars
	}

	ec.Fingerprint = computeFingerprint(ec.ExceptionType, methodDescriptor{DeclaringType: className, MethodName: methodName}, ec.StackTrace)

	a.transport.sendException(ec)
}

// splitLocation splits a "class.method" native location label; if there is
// no separator the whole string is treated as the class name.
func splitLocation(location string) (class, method string) {
	idx := strings.LastIndex(location, ".")
	if idx == -1 {
		return location, ""
	}
	return location[:idx], location[idx+1:]
}

// parseNativeVariables decodes variablesJSON opaquely: keys matching
// "frame_<i>_<class>.<method>" are grouped by that label into
// frameLocals; everything else becomes a top-level global local variable.
func parseNativeVariables(s *serializer, variablesJSON string) (frameLocals map[string]map[string]*CapturedValue, globals map[string]*CapturedValue) {
	frameLocals = map[string]map[string]*CapturedValue{}
	globals = map[string]*CapturedValue{}

	if variablesJSON == "" {
		return frameLocals, globals
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(variablesJSON), &raw); err != nil {
		return frameLocals, globals
	}

	for key, msg := range raw {
		if label, ok := parseFrameKey(key); ok {
			var frameVars map[string]interface{}
			if err := json.Unmarshal(msg, &frameVars); err != nil {
				continue
			}
			group := map[string]*CapturedValue{}
			for name, v := range frameVars {
				group[name] = s.capture(name, v, 0)
			}
			frameLocals[label] = group
			continue
		}

		var decoded interface{}
		if err := json.Unmarshal(msg, &decoded); err != nil {
			continue
		}
		globals[key] = s.capture(key, decoded, 0)
	}
	return frameLocals, globals
}

// parseFrameKey recognizes the "frame_<i>_<class>.<method>" convention,
// returning the frame label (<class>.<method>) whose nested object holds
// that frame's local variables.
func parseFrameKey(key string) (label string, ok bool) {
	if !strings.HasPrefix(key, "frame_") {
		return "", false
	}
	rest := key[len("frame_"):]
	sep := strings.Index(rest, "_")
	if sep == -1 {
		return "", false
	}
	idxPart, label := rest[:sep], rest[sep+1:]
	if _, err := strconv.Atoi(idxPart); err != nil {
		return "", false
	}
	return label, true
}
