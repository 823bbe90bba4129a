package agent

import (
	"errors"
	"testing"
)

type fakeSink struct {
	captures []*ExceptionCapture
}

func (f *fakeSink) sendException(ec *ExceptionCapture) {
	f.captures = append(f.captures, ec)
}

func testConfig() *Config {
	cfg := LoadConfig("", nil)
	cfg.SamplingRate = 1
	cfg.MaxCaptureDepth = 10
	cfg.MaxStringLength = 1000
	cfg.MaxCollectionSize = 100
	return cfg
}

// TestOnExceptionReentrancyGuard covers I4: an exception raised while
// already intercepting (the guard's "intercepting" flag is true) must not
// recurse into a second capture.
func TestOnExceptionReentrancyGuard(t *testing.T) {
	sink := &fakeSink{}
	ic := newInterceptor(testConfig(), sink)

	st := currentState()
	st.intercepting = true
	defer func() { st.intercepting = false }()

	ic.OnException(errors.New("boom"), nil, methodDescriptor{DeclaringType: "T", MethodName: "M"}, nil)

	if len(sink.captures) != 0 {
		t.Fatalf("expected no capture while already intercepting, got %d", len(sink.captures))
	}
}

// TestOnExceptionDedupSamePhysicalInstance covers I5/S2: the same error
// instance re-observed (e.g. rethrown up a call chain) must only produce
// one capture.
func TestOnExceptionDedupSamePhysicalInstance(t *testing.T) {
	sink := &fakeSink{}
	ic := newInterceptor(testConfig(), sink)

	err := errors.New("same instance")
	desc := methodDescriptor{DeclaringType: "T", MethodName: "M"}

	ic.OnException(err, nil, desc, nil)
	ic.OnException(err, nil, desc, nil) // re-observed at an outer frame

	if len(sink.captures) != 1 {
		t.Fatalf("expected exactly one capture for the same physical exception, got %d", len(sink.captures))
	}
}

// TestOnExceptionDistinctInstancesBothCaptured covers I6: two distinct
// exception instances must each produce their own capture, even with the
// same type and message.
func TestOnExceptionDistinctInstancesBothCaptured(t *testing.T) {
	sink := &fakeSink{}
	ic := newInterceptor(testConfig(), sink)

	desc := methodDescriptor{DeclaringType: "T", MethodName: "M"}
	ic.OnException(errors.New("first"), nil, desc, nil)
	ic.OnException(errors.New("second"), nil, desc, nil)

	if len(sink.captures) != 2 {
		t.Fatalf("expected two captures for two distinct exception instances, got %d", len(sink.captures))
	}
}

// TestOnExceptionSamplingRateZeroSuppresses covers S4: a sampling rate of
// zero must suppress every capture.
func TestOnExceptionSamplingRateZeroSuppresses(t *testing.T) {
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.SamplingRate = 0
	ic := newInterceptor(cfg, sink)

	ic.OnException(errors.New("never sampled"), nil, methodDescriptor{DeclaringType: "T", MethodName: "M"}, nil)

	if len(sink.captures) != 0 {
		t.Fatalf("expected no capture with sampling rate 0, got %d", len(sink.captures))
	}
}

// TestOnExceptionMethodArgumentOrderPreserved covers S2's argument-order
// requirement: captured method arguments must preserve declaration order
// via MethodArgOrder regardless of map iteration order.
func TestOnExceptionMethodArgumentOrderPreserved(t *testing.T) {
	sink := &fakeSink{}
	ic := newInterceptor(testConfig(), sink)

	desc := methodDescriptor{
		DeclaringType: "T",
		MethodName:    "Process",
		ParamNames:    []string{"userID", "payload", "retries"},
	}
	ic.OnException(errors.New("arg order"), nil, desc, []interface{}{"u1", "p", 3})

	if len(sink.captures) != 1 {
		t.Fatalf("expected one capture, got %d", len(sink.captures))
	}
	got := sink.captures[0].MethodArgOrder
	want := []string{"userID", "payload", "retries"}
	if len(got) != len(want) {
		t.Fatalf("MethodArgOrder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MethodArgOrder[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestOnExceptionRequestContextAttached exercises the additive request
// context path used by the HTTP/RPC recover-middleware adapters.
func TestOnExceptionRequestContextAttached(t *testing.T) {
	sink := &fakeSink{}
	ic := newInterceptor(testConfig(), sink)

	rc := map[string]interface{}{"method": "GET", "path": "/widgets"}
	ic.OnExceptionWithContext(errors.New("http failure"), nil, methodDescriptor{DeclaringType: "T", MethodName: "M"}, nil, rc)

	if len(sink.captures) != 1 {
		t.Fatalf("expected one capture, got %d", len(sink.captures))
	}
	if sink.captures[0].RequestContext["path"] != "/widgets" {
		t.Fatalf("RequestContext not attached: %#v", sink.captures[0].RequestContext)
	}
}

// TestOnExceptionNilErrorIsNoOp guards against a defensive regression:
// OnException must tolerate a nil error without panicking or capturing.
func TestOnExceptionNilErrorIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	ic := newInterceptor(testConfig(), sink)

	ic.OnException(nil, nil, methodDescriptor{DeclaringType: "T", MethodName: "M"}, nil)

	if len(sink.captures) != 0 {
		t.Fatalf("expected no capture for a nil error, got %d", len(sink.captures))
	}
}
