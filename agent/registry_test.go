package agent

import (
	"context"
	"testing"
)

type fakeBreakpointSink struct {
	hits []*BreakpointCapture
}

func (f *fakeBreakpointSink) sendBreakpointHit(bc *BreakpointCapture) {
	f.hits = append(f.hits, bc)
}

// TestRegistrySetLookupRemove covers S6's breakpoint lifecycle: set,
// lookup by class:line, remove, then lookup must fail.
func TestRegistrySetLookupRemove(t *testing.T) {
	reinstrumented := []string{}
	r := newRegistry(func(class string) { reinstrumented = append(reinstrumented, class) })

	r.set("bp-1", "billing.Invoice", 42, "")

	rec, ok := r.lookup("billing.Invoice", 42)
	if !ok {
		t.Fatal("expected lookup to find the registered breakpoint")
	}
	if rec.ID != "bp-1" {
		t.Fatalf("ID = %q, want bp-1", rec.ID)
	}
	if len(reinstrumented) != 1 || reinstrumented[0] != "billing.Invoice" {
		t.Fatalf("expected reinstrument to be requested for billing.Invoice, got %v", reinstrumented)
	}

	r.remove("bp-1")

	if _, ok := r.lookup("billing.Invoice", 42); ok {
		t.Fatal("expected lookup to fail after remove")
	}
}

// TestRegistryOnHitIncrementsCountAndSendsCapture covers S6's hit-counting
// and capture-dispatch behavior.
func TestRegistryOnHitIncrementsCountAndSendsCapture(t *testing.T) {
	r := newRegistry(nil)
	sink := &fakeBreakpointSink{}
	r.sink = sink

	r.set("bp-2", "billing.Invoice", 42, "amount > 100")

	s := newSerializer(testConfig())
	r.onHitAt(s, context.Background(), "billing.Invoice", 42, nil, []interface{}{100})
	r.onHitAt(s, context.Background(), "billing.Invoice", 42, nil, []interface{}{200})

	rec, ok := r.lookup("billing.Invoice", 42)
	if !ok {
		t.Fatal("expected breakpoint still registered")
	}
	if rec.HitCount() != 2 {
		t.Fatalf("HitCount() = %d, want 2", rec.HitCount())
	}
	if len(sink.hits) != 2 {
		t.Fatalf("expected 2 dispatched captures, got %d", len(sink.hits))
	}
	if sink.hits[0].BreakpointID != "bp-2" {
		t.Fatalf("BreakpointID = %q, want bp-2", sink.hits[0].BreakpointID)
	}
}

// TestRegistryOnHitAtUnregisteredLocationIsNoOp ensures a hit at a
// location with no registered breakpoint produces no capture.
func TestRegistryOnHitAtUnregisteredLocationIsNoOp(t *testing.T) {
	r := newRegistry(nil)
	sink := &fakeBreakpointSink{}
	r.sink = sink

	s := newSerializer(testConfig())
	r.onHitAt(s, context.Background(), "no.Such", 1, nil, nil)

	if len(sink.hits) != 0 {
		t.Fatalf("expected no capture for an unregistered location, got %d", len(sink.hits))
	}
}

// TestRegistryRemoveUnknownIDIsNoOp ensures removing a never-registered
// id does not panic and leaves the registry otherwise intact.
func TestRegistryRemoveUnknownIDIsNoOp(t *testing.T) {
	r := newRegistry(nil)
	r.remove("never-existed")

	r.set("bp-3", "a.B", 1, "")
	if _, ok := r.lookup("a.B", 1); !ok {
		t.Fatal("expected unrelated breakpoint to remain registered")
	}
}
