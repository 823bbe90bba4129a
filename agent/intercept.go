package agent

import (
	"bytes"
	"hash/fnv"
	"reflect"
	"runtime"
	"strconv"
	"sync"
)

// interceptState is the per-goroutine guard state from spec.md §4.E:
// "Per-thread state: intercepting: bool (default false),
// last_exception_identity: int (default 0)."
type interceptState struct {
	intercepting         bool
	lastExceptionIdentity uintptr
}

// goroutineStates realizes Go's absence of native thread-locals the way
// the wider ecosystem does it in the absence of a goroutine-local-storage
// primitive: a concurrent map keyed by goroutine id, looked up once per
// entry. See DESIGN.md's Component E entry for why no third-party GLS
// library is wired here.
var goroutineStates sync.Map // uint64 -> *interceptState

func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// The stack header always starts with "goroutine <id> [...]".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end == -1 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func currentState() *interceptState {
	gid := currentGoroutineID()
	if v, ok := goroutineStates.Load(gid); ok {
		return v.(*interceptState)
	}
	st := &interceptState{}
	actual, _ := goroutineStates.LoadOrStore(gid, st)
	return actual.(*interceptState)
}

// exceptionSink is the narrow interface the interception controller needs
// from the transport controller (component G), keeping this file free of
// a direct dependency on the websocket/queue internals.
type exceptionSink interface {
	sendException(*ExceptionCapture)
}

// Interceptor implements component E: the policy layer deciding when a
// capture is produced. One Interceptor is owned by the Agent (agent/agent.go).
type Interceptor struct {
	cfg        *Config
	serializer *serializer
	sink       exceptionSink
}

func newInterceptor(cfg *Config, sink exceptionSink) *Interceptor {
	return &Interceptor{cfg: cfg, serializer: newSerializer(cfg), sink: sink}
}

// OnException is the single entry point invoked on method exit when an
// exception (recovered panic, wrapped as a Go error) is propagating,
// exactly per spec.md §4.E's five-step algorithm.
func (ic *Interceptor) OnException(err error, receiver interface{}, desc methodDescriptor, args []interface{}) {
	ic.onException(err, receiver, desc, args, nil)
}

// OnExceptionWithContext is the same entry point used by the HTTP/RPC
// recover-middleware adapters, which additionally have request metadata
// to attach to the capture (spec.md §6's request-context extension).
func (ic *Interceptor) OnExceptionWithContext(err error, receiver interface{}, desc methodDescriptor, args []interface{}, requestContext map[string]interface{}) {
	ic.onException(err, receiver, desc, args, requestContext)
}

func (ic *Interceptor) onException(err error, receiver interface{}, desc methodDescriptor, args []interface{}, requestContext map[string]interface{}) {
	if err == nil {
		return
	}

	st := currentState()
	if st.intercepting {
		return
	}

	identity := exceptionIdentity(err)
	if identity != 0 && identity == st.lastExceptionIdentity {
		return
	}

	st.intercepting = true
	st.lastExceptionIdentity = identity
	defer func() {
		st.intercepting = false
		// Catastrophic failure anywhere in steps a-d must never surface —
		// spec.md §4.E step e / §7's "capture pipeline catastrophic".
		recover()
	}()

	if ic.sink == nil {
		return
	}
	if !ic.cfg.ShouldSample() {
		return
	}

	capture := buildExceptionCapture(ic.serializer, err, receiver, desc, args, 3)
	capture.RequestContext = requestContext
	ic.sink.sendException(capture)
}

// exceptionIdentity is the Go analogue of spec.md §4.E's identity(throwable).
// Go errors are frequently value types rather than pointer-shaped (unlike
// Java throwables, which always have object identity), so this falls back
// to a content fingerprint when the error isn't pointer-shaped — a
// deliberate, documented deviation (see DESIGN.md).
func exceptionIdentity(err error) uintptr {
	if id, ok := pointerIdentity(err); ok {
		return id
	}
	// Content-based fallback: same message + same dynamic type collapses
	// to the same identity for the duration of one unwind, which is the
	// best a value-typed error can offer toward spec.md's "same physical
	// exception instance" dedup rule.
	return contentIdentity(err)
}

// pointerIdentity returns the underlying pointer address when err is
// pointer-shaped (the common case: errors.New, fmt.Errorf, and most
// custom error types embed or are a pointer receiver).
func pointerIdentity(err error) (uintptr, bool) {
	v := reflect.ValueOf(err)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return v.Pointer(), true
	}
	return 0, false
}

// contentIdentity hashes the dynamic type name and error message for
// value-typed errors that have no pointer identity to key off of.
func contentIdentity(err error) uintptr {
	h := fnv.New64a()
	h.Write([]byte(reflect.TypeOf(err).String()))
	h.Write([]byte{0})
	h.Write([]byte(err.Error()))
	return uintptr(h.Sum64())
}
