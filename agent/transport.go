package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// transportState is the coarse session state from spec.md §4.G's state
// diagram: DISCONNECTED → CONNECTING → OPEN → AUTHENTICATED → CLOSED →
// (backoff) → CONNECTING.
type transportState int32

const (
	stateDisconnected transportState = iota
	stateConnecting
	stateOpen
	stateAuthenticated
	stateClosed
)

const heartbeatPeriod = 30 * time.Second

// Transport implements component G: the duplex session, its send queue,
// sender goroutine, heartbeat, reconnect backoff, and inbound command
// dispatcher. It is the sole owner of the websocket connection.
type Transport struct {
	cfg      *Config
	registry *registry
	log      *agentLogger

	state atomic.Int32 // transportState

	connected         atomic.Bool
	authenticated     atomic.Bool
	shouldReconnect   atomic.Bool
	reconnectAttempts atomic.Int32

	queue *sendQueue

	connMu sync.Mutex
	conn   *websocket.Conn

	heartbeatStop chan struct{}
	senderStop    chan struct{}
	reconnectStop chan struct{}
	readerDone    chan struct{}

	dialer *websocket.Dialer
}

// NewTransport builds a Transport bound to cfg and reg; connecting does not
// happen until Start is called.
func NewTransport(cfg *Config, reg *registry, log *agentLogger) *Transport {
	t := &Transport{
		cfg:      cfg,
		registry: reg,
		log:      log,
		queue:    newSendQueue(),
		dialer:   websocket.DefaultDialer,
	}
	t.queue.onDrop = func() {
		t.log.WarnDropped("📡 send queue full (%d), dropping envelope", sendQueueCapacity)
	}
	if reg != nil {
		reg.sink = t
	}
	t.shouldReconnect.Store(true)
	return t
}

func (t *Transport) setState(s transportState) {
	t.state.Store(int32(s))
}

func (t *Transport) currentState() transportState {
	return transportState(t.state.Load())
}

// Start connects asynchronously and begins the sender/reader/heartbeat
// goroutines described in SPEC_FULL.md §5. It returns immediately; use
// Shutdown to stop.
func (t *Transport) Start(ctx context.Context) {
	t.senderStop = make(chan struct{})
	t.reconnectStop = make(chan struct{})
	go t.senderLoop()
	go t.connectLoop(ctx)
}

// connectLoop performs the initial connection and all subsequent
// reconnects, reproducing spec.md's I9 formula exactly: the n-th delay
// within a reconnect episode equals min(1000*2^(n-1), 60000)ms, capped at
// 10 attempts before permanent failure. Only the very first connection
// attempt of the process's lifetime is unconditional and immediate; every
// attempt after that — including the first attempt of a freshly started
// reconnect episode — is preceded by a cenkalti/backoff/v4-driven delay,
// since backoff.Retry's own first call happens before it ever consults
// NextBackOff and would otherwise reconnect instantly after a drop.
func (t *Transport) connectLoop(ctx context.Context) {
	attemptedBefore := false

	for {
		if !t.shouldReconnect.Load() {
			return
		}

		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 1 * time.Second
		eb.Multiplier = 2
		eb.MaxInterval = 60 * time.Second
		eb.MaxElapsedTime = 0
		// Zero randomization: spec.md's I9 requires the n-th delay to equal
		// exactly min(1000*2^(n-1), 60000)ms, not a jittered approximation.
		eb.RandomizationFactor = 0

		var dialErr error
		for attempt := 0; attempt < 10; attempt++ {
			if !t.shouldReconnect.Load() {
				return
			}
			if attemptedBefore || attempt > 0 {
				if !t.sleepBackoff(eb.NextBackOff()) {
					return
				}
			}
			attemptedBefore = true

			t.reconnectAttempts.Add(1)
			if dialErr = t.dial(ctx); dialErr == nil {
				break
			}
			t.log.Warnf("📡 connect attempt %d failed: %v", t.reconnectAttempts.Load(), dialErr)
		}

		if dialErr != nil {
			t.log.Warnf("📡 reconnect exhausted after 10 attempts, giving up")
			return
		}

		t.readerDone = make(chan struct{})
		go t.readerLoop()

		<-t.readerDone // blocks until the socket closes, then falls through to reconnect
		if !t.shouldReconnect.Load() {
			return
		}
	}
}

// sleepBackoff waits d, reporting false if shutdown interrupted the wait
// first so the caller can abandon the reconnect loop promptly instead of
// blocking up to MaxInterval after Shutdown is called.
func (t *Transport) sleepBackoff(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.reconnectStop:
		return false
	}
}

// dial opens the websocket connection and immediately sends a register
// envelope bypassing the queue, per spec.md §4.G's OPEN-state behavior.
func (t *Transport) dial(ctx context.Context) error {
	t.setState(stateConnecting)

	conn, _, err := t.dialer.DialContext(ctx, t.cfg.BackendURL, nil)
	if err != nil {
		t.setState(stateDisconnected)
		return err
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.connected.Store(true)
	t.authenticated.Store(false)
	t.setState(stateOpen)

	reg := registerPayload{
		APIKey:         t.cfg.APIKey,
		AgentID:        t.cfg.AgentID,
		Hostname:       t.cfg.Hostname,
		Runtime:        runtimeTag,
		RuntimeVersion: goRuntimeVersion(),
		AgentVersion:   agentVersion,
		Environment:    t.cfg.Environment,
		GitContext:     t.cfg.ReleaseContext,
	}
	if err := t.writeDirect(newEnvelope("register", reg)); err != nil {
		t.log.Warnf("📡 failed to send register envelope: %v", err)
	}
	return nil
}

// writeDirect sends env immediately, bypassing the send queue — used only
// for the register handshake which must precede anything queued.
func (t *Transport) writeDirect(env *envelope) error {
	return t.writeEnvelope(env)
}

func (t *Transport) writeEnvelope(env *envelope) error {
	data, compressed, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return websocket.ErrCloseSent
	}
	if compressed {
		return t.conn.WriteMessage(websocket.BinaryMessage, data)
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// senderLoop is the dedicated sender goroutine: once per second, if the
// socket is connected, it drains the queue and transmits what it took. It
// does not wake when an envelope is pushed, so an envelope waits for the
// next tick (up to 1s) before it is sent. Closing senderStop exits it.
func (t *Transport) senderLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.senderStop:
			return
		case <-ticker.C:
			if !t.connected.Load() {
				continue
			}
			for _, env := range t.queue.drain() {
				if err := t.writeEnvelope(env); err != nil {
					t.log.Warnf("📡 send failed, requeuing: %v", err)
					t.queue.push(env)
					break
				}
			}
		}
	}
}

// readerLoop reads inbound frames until the socket closes, dispatching
// each to the inbound command table (spec.md §4.G).
func (t *Transport) readerLoop() {
	defer close(t.readerDone)
	defer t.onClosed()

	for {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := decodeInbound(data, kind == websocket.BinaryMessage)
		if err != nil {
			t.log.Warnf("📡 malformed inbound envelope: %v", err)
			continue
		}
		t.dispatch(env)
	}
}

// dispatch implements spec.md §4.G's inbound command table.
func (t *Transport) dispatch(env *envelope) {
	payload, _ := env.Payload.(map[string]interface{})

	switch env.Type {
	case "registered":
		t.reconnectAttempts.Store(0)
		t.authenticated.Store(true)
		t.setState(stateAuthenticated)
		t.startHeartbeat()

	case "error":
		code, _ := payload["code"].(string)
		if code == "auth_error" || code == "invalid_api_key" {
			t.shouldReconnect.Store(false)
			t.log.Warnf("📡 auth error (%s), giving up permanently", code)
			t.closeConn()
			return
		}
		t.log.Warnf("📡 server error: %v", payload)

	case "set_breakpoint":
		id, _ := payload["id"].(string)
		class, _ := payload["class_name"].(string)
		lineF, _ := payload["line_number"].(float64)
		condition, _ := payload["condition"].(string)
		if id == "" || class == "" {
			t.log.Warnf("📡 set_breakpoint missing required fields")
			return
		}
		if t.registry != nil {
			t.registry.set(id, class, int(lineF), condition)
		}

	case "remove_breakpoint":
		id, _ := payload["id"].(string)
		if id == "" {
			t.log.Warnf("📡 remove_breakpoint missing id")
			return
		}
		if t.registry != nil {
			t.registry.remove(id)
		}

	case "configure":
		// Reserved; no-op per spec.md §4.G.
	}
}

func (t *Transport) startHeartbeat() {
	t.heartbeatStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-t.heartbeatStop:
				return
			case <-ticker.C:
				if !t.authenticated.Load() {
					return
				}
				hb := heartbeatPayload{Timestamp: time.Now().UnixMilli(), AgentID: t.cfg.AgentID}
				t.queue.push(newEnvelope("heartbeat", hb))
			}
		}
	}()
}

func (t *Transport) stopHeartbeat() {
	if t.heartbeatStop != nil {
		close(t.heartbeatStop)
		t.heartbeatStop = nil
	}
}

func (t *Transport) onClosed() {
	t.setState(stateClosed)
	t.connected.Store(false)
	t.authenticated.Store(false)
	t.stopHeartbeat()
	t.connMu.Lock()
	t.conn = nil
	t.connMu.Unlock()
}

func (t *Transport) closeConn() {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// sendException implements exceptionSink for the interception controller.
// Enqueued unconditionally regardless of auth state, per spec.md §9's
// documented open question: pre-auth events still hit the queue.
func (t *Transport) sendException(ec *ExceptionCapture) {
	t.queue.push(newEnvelope("exception", toExceptionPayload(t.cfg, ec)))
}

// sendBreakpointHit implements breakpointSink for the registry.
func (t *Transport) sendBreakpointHit(bc *BreakpointCapture) {
	t.queue.push(newEnvelope("breakpoint_hit", toBreakpointHitPayload(t.cfg, bc)))
}

// Shutdown performs the process-exit hook sequence from spec.md §5 in
// order: clear should_reconnect, stop heartbeat, stop the sender (it exits
// without draining; queued envelopes are dropped), cancel any pending
// reconnect, close the socket.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.shouldReconnect.Store(false)
	t.stopHeartbeat()
	if t.senderStop != nil {
		close(t.senderStop)
	}
	if t.reconnectStop != nil {
		close(t.reconnectStop)
	}
	t.closeConn()
	return nil
}
