package agent

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Agent is the root object tying together the value serializer (B), the
// interception controller (E), the breakpoint registry (F), and the
// transport controller (G) — the Go analogue of the teacher's SDK struct
// in tracekit/config.go.
type Agent struct {
	cfg         *Config
	serializer  *serializer
	interceptor *Interceptor
	registry    *registry
	transport   *Transport
	logger      *agentLogger
	tracer      trace.Tracer

	nativeDedup *nativeDedup
}

// NewAgent builds an Agent from rawArgs/properties (spec.md §6's
// three-channel configuration surface), starts the transport controller,
// and returns a ready-to-use instance. Mirrors tracekit/config.go's
// NewSDK: build config, build collaborators, start background work, log
// one confirmation line.
func NewAgent(rawArgs string, properties map[string]string, reinstrument func(class string)) *Agent {
	cfg := LoadConfig(rawArgs, properties)
	logger := newAgentLogger(cfg.Debug)

	reg := newRegistry(reinstrument)
	transport := NewTransport(cfg, reg, logger)

	a := &Agent{
		cfg:         cfg,
		serializer:  newSerializer(cfg),
		registry:    reg,
		transport:   transport,
		logger:      logger,
		tracer:      otel.Tracer("github.com/aivorynet/agent-go"),
		nativeDedup: newNativeDedup(),
	}
	a.interceptor = newInterceptor(cfg, transport)

	transport.Start(context.Background())

	log.Printf("📡 agent initialized (agent_id=%s, environment=%s)", cfg.AgentID, cfg.Environment)
	return a
}

// OnException is the entry point instrumentation adapters call on a
// recovered panic, matching component E's contract exactly. receiver may
// be nil; desc identifies the failing method.
func (a *Agent) OnException(err error, receiver interface{}, desc methodDescriptor, args []interface{}) {
	if !covered(a.cfg, desc.DeclaringType) {
		return
	}
	a.interceptor.OnException(err, receiver, desc, args)
}

// OnHTTPException is OnException plus an additive request-context map,
// used by the recover-middleware adapters (agent/ginrecover.go and
// siblings).
func (a *Agent) OnHTTPException(err error, desc methodDescriptor, requestContext map[string]interface{}) {
	if !covered(a.cfg, desc.DeclaringType) {
		return
	}
	a.interceptor.OnExceptionWithContext(err, nil, desc, nil, requestContext)
}

// OnHit implements the F-facing half of coverage selection described in
// spec.md §6: probe locations registered via SetBreakpoint invoke on_hit
// only for covered classes.
func (a *Agent) OnHit(ctx context.Context, class string, line int, receiver interface{}, args []interface{}) {
	if !covered(a.cfg, class) {
		return
	}
	a.registry.onHitAt(a.serializer, ctx, class, line, receiver, args)
}

// SetBreakpoint and RemoveBreakpoint expose component F directly for
// hosts that want to drive it without going through the transport's
// inbound dispatcher (e.g. tests, or a local control plane).
func (a *Agent) SetBreakpoint(id, class string, line int, condition string) {
	a.registry.set(id, class, line, condition)
}

func (a *Agent) RemoveBreakpoint(id string) {
	a.registry.remove(id)
}

// Shutdown performs the process-exit hook sequence from spec.md §5.
func (a *Agent) Shutdown(ctx context.Context) error {
	return a.transport.Shutdown(ctx)
}
