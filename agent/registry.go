package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// BreakpointRecord is a server-installed probe, held by the registry until
// the server removes it or the session ends (spec.md §3's lifecycle note:
// "the agent never destroys one autonomously").
type BreakpointRecord struct {
	ID        string
	ClassName string
	Line      int
	Condition string // accepted, never evaluated — spec.md §9 Open Question
	hitCount  atomic.Int64
}

// HitCount returns the number of times on_hit has fired for this record.
func (r *BreakpointRecord) HitCount() int64 {
	return r.hitCount.Load()
}

func locationKey(class string, line int) string {
	return fmt.Sprintf("%s:%d", class, line)
}

// reinstrumentFunc requests that the host re-instrument a class so the
// breakpoint's probe point actually fires. It is an opaque external effect
// per spec.md §4.F; production wiring supplies the real hook, tests supply
// a no-op.
type reinstrumentFunc func(class string)

// breakpointSink receives built captures from a registry hit, decoupling
// the registry from the transport controller's concrete type.
type breakpointSink interface {
	sendBreakpointHit(*BreakpointCapture)
}

// registry implements component F: two concurrent maps over the same
// BreakpointRecord, keyed by id and by "class:line".
type registry struct {
	byID         sync.Map // string -> *BreakpointRecord
	byLocation   sync.Map // string -> *BreakpointRecord
	reinstrument reinstrumentFunc
	sink         breakpointSink
}

func newRegistry(reinstrument reinstrumentFunc) *registry {
	if reinstrument == nil {
		reinstrument = func(string) {}
	}
	return &registry{reinstrument: reinstrument}
}

// set implements spec.md §4.F's set(id, class, line, condition): insert
// under both keys, request re-instrumentation.
func (r *registry) set(id, class string, line int, condition string) {
	rec := &BreakpointRecord{ID: id, ClassName: class, Line: line, Condition: condition}
	r.byID.Store(id, rec)
	r.byLocation.Store(locationKey(class, line), rec)
	r.reinstrument(class)
}

// remove implements spec.md §4.F's remove(id): look up by id; if found,
// also remove by class:line.
func (r *registry) remove(id string) {
	v, ok := r.byID.Load(id)
	if !ok {
		return
	}
	rec := v.(*BreakpointRecord)
	r.byID.Delete(id)
	r.byLocation.Delete(locationKey(rec.ClassName, rec.Line))
}

// lookup implements spec.md §4.F's lookup(class, line).
func (r *registry) lookup(class string, line int) (*BreakpointRecord, bool) {
	v, ok := r.byLocation.Load(locationKey(class, line))
	if !ok {
		return nil, false
	}
	return v.(*BreakpointRecord), true
}

// onHitAt implements spec.md §4.F's on_hit(class, line, receiver, args):
// if a record is registered for this location, build a BreakpointCapture
// via 4.D and hand it to the transport controller tagged with the
// record's id. condition is accepted but never evaluated.
func (r *registry) onHitAt(s *serializer, ctx context.Context, class string, line int, receiver interface{}, args []interface{}) {
	rec, ok := r.lookup(class, line)
	if !ok {
		return
	}
	rec.hitCount.Add(1)

	capture := buildBreakpointCapture(s, ctx, rec.ID, class, line, receiver, args)
	if r.sink != nil {
		r.sink.sendBreakpointHit(capture)
	}
}
