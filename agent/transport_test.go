package agent

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TestEncodeDecodeEnvelopeRoundTrip exercises the wire codec used by the
// transport controller: small envelopes travel as plain text, and the
// decode side is symmetric with the encode side either way.
func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	env := newEnvelope("heartbeat", heartbeatPayload{Timestamp: 1234, AgentID: "agent-1"})

	data, compressed, err := encodeEnvelope(env)
	if err != nil {
		t.Fatalf("encodeEnvelope: %v", err)
	}
	if compressed {
		t.Fatal("expected a small envelope to be sent uncompressed")
	}

	got, err := decodeInbound(data, compressed)
	if err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if got.Type != "heartbeat" {
		t.Fatalf("Type = %q, want heartbeat", got.Type)
	}
}

// TestEncodeEnvelopeCompressesLargePayloads covers the >8KiB compression
// threshold: a large envelope must round-trip through the binary/flate
// path and decode back to the same type.
func TestEncodeEnvelopeCompressesLargePayloads(t *testing.T) {
	big := make(map[string]interface{}, 2000)
	for i := 0; i < 2000; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "value-padding-to-exceed-threshold"
	}
	env := newEnvelope("exception", big)

	data, compressed, err := encodeEnvelope(env)
	if err != nil {
		t.Fatalf("encodeEnvelope: %v", err)
	}
	if !compressed {
		t.Fatal("expected a large envelope to be compressed")
	}

	got, err := decodeInbound(data, compressed)
	if err != nil {
		t.Fatalf("decodeInbound: %v", err)
	}
	if got.Type != "exception" {
		t.Fatalf("Type = %q, want exception", got.Type)
	}
}

// TestSendQueueDropsNewestWhenFull covers I7: the queue never blocks the
// caller; once at capacity it silently drops the incoming envelope and
// leaves the already-queued envelopes untouched.
func TestSendQueueDropsNewestWhenFull(t *testing.T) {
	q := &sendQueue{items: make([]*envelope, 0, 3), capacity: 3}
	dropped := 0
	q.onDrop = func() { dropped++ }

	for i := 0; i < 5; i++ {
		q.push(newEnvelope("heartbeat", heartbeatPayload{Timestamp: int64(i)}))
	}

	items := q.drain()
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3 (capacity)", len(items))
	}
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	// The surviving items must be the three earliest pushes (0,1,2); the
	// queue rejects new arrivals once full rather than evicting old ones.
	first := items[0].Payload.(heartbeatPayload)
	if first.Timestamp != 0 {
		t.Fatalf("oldest surviving Timestamp = %d, want 0", first.Timestamp)
	}
	last := items[2].Payload.(heartbeatPayload)
	if last.Timestamp != 2 {
		t.Fatalf("newest surviving Timestamp = %d, want 2", last.Timestamp)
	}
}

// TestSendQueueDrainIsEmptyAfterward ensures drain empties the queue
// (swap-under-lock) rather than leaving a stale copy behind.
func TestSendQueueDrainIsEmptyAfterward(t *testing.T) {
	q := newSendQueue()
	q.push(newEnvelope("heartbeat", heartbeatPayload{Timestamp: 1}))

	if got := len(q.drain()); got != 1 {
		t.Fatalf("first drain returned %d items, want 1", got)
	}
	if got := len(q.drain()); got != 0 {
		t.Fatalf("second drain returned %d items, want 0", got)
	}
}

// TestDispatchSetAndRemoveBreakpoint covers the transport's inbound
// command table for set_breakpoint/remove_breakpoint against the shared
// registry.
func TestDispatchSetAndRemoveBreakpoint(t *testing.T) {
	reg := newRegistry(nil)
	tr := &Transport{registry: reg, log: newAgentLogger(false)}

	tr.dispatch(&envelope{Type: "set_breakpoint", Payload: map[string]interface{}{
		"id": "bp-1", "class_name": "billing.Invoice", "line_number": float64(42), "condition": "",
	}})

	if _, ok := reg.lookup("billing.Invoice", 42); !ok {
		t.Fatal("expected set_breakpoint to register the breakpoint")
	}

	tr.dispatch(&envelope{Type: "remove_breakpoint", Payload: map[string]interface{}{"id": "bp-1"}})

	if _, ok := reg.lookup("billing.Invoice", 42); ok {
		t.Fatal("expected remove_breakpoint to unregister the breakpoint")
	}
}

// TestDispatchAuthErrorStopsReconnect covers the transport's permanent
// give-up path on an auth_error server response.
func TestDispatchAuthErrorStopsReconnect(t *testing.T) {
	tr := &Transport{registry: newRegistry(nil), log: newAgentLogger(false)}
	tr.shouldReconnect.Store(true)

	tr.dispatch(&envelope{Type: "error", Payload: map[string]interface{}{"code": "auth_error"}})

	if tr.shouldReconnect.Load() {
		t.Fatal("expected shouldReconnect to be cleared on auth_error")
	}
}

// TestDispatchRegisteredMarksAuthenticated covers the OPEN -> AUTHENTICATED
// transition from spec.md's state diagram.
func TestDispatchRegisteredMarksAuthenticated(t *testing.T) {
	tr := &Transport{registry: newRegistry(nil), log: newAgentLogger(false)}

	tr.dispatch(&envelope{Type: "registered", Payload: map[string]interface{}{}})

	if !tr.authenticated.Load() {
		t.Fatal("expected authenticated to be true after a registered response")
	}
	if tr.currentState() != stateAuthenticated {
		t.Fatalf("currentState() = %v, want stateAuthenticated", tr.currentState())
	}
	tr.stopHeartbeat()
}

// TestReconnectBackoffFormula covers I9: the n-th reconnect delay must
// equal exactly min(1000*2^(n-1), 60000)ms with no jitter, for up to 10
// attempts before permanent failure.
func TestReconnectBackoffFormula(t *testing.T) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2
	eb.MaxInterval = 60 * time.Second
	eb.MaxElapsedTime = 0
	eb.RandomizationFactor = 0
	eb.Reset()

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, w := range want {
		got := eb.NextBackOff()
		if got != w {
			t.Fatalf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}
