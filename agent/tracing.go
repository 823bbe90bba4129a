package agent

import (
	"context"
	"crypto/tls"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing stands up a real OpenTelemetry SDK pipeline — OTLP/HTTP
// exporter, batching span processor, resource attributes — exactly the
// way the teacher's config.go initTracer does, so the DB/cache/ORM
// adapters' spans (agent/gorm.go, agent/redis.go, agent/database.go) are
// recorded and exported rather than running against the global no-op
// tracer. It is opt-in: an Agent built with NewAgent works fine without
// it, exercising exception capture alone.
//
// tracesEndpoint follows the same bare-host/full-URL shape resolveEndpoint
// already understands for the duplex transport; when empty, BackendURL's
// host is reused with the default "/v1/traces" path.
func (a *Agent) InitTracing(ctx context.Context, tracesEndpoint string) (shutdown func(context.Context) error, err error) {
	if tracesEndpoint == "" {
		tracesEndpoint = deriveTracesEndpoint(a.cfg.BackendURL)
	}

	endpoint, urlPath, useSSL := splitTracesEndpoint(tracesEndpoint)

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithURLPath(urlPath),
		otlptracehttp.WithHeaders(map[string]string{"X-API-Key": a.cfg.APIKey}),
	}
	if useSSL {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{}))
	} else {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", "agent-go"),
		attribute.String("agent.id", a.cfg.AgentID),
	}
	if a.cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", a.cfg.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(a.cfg.SamplingRate))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	a.tracer = tp.Tracer("github.com/aivorynet/agent-go")

	return tp.Shutdown, nil
}

// deriveTracesEndpoint reuses the websocket backend's host for the OTLP
// traces endpoint when the caller doesn't supply a dedicated one.
func deriveTracesEndpoint(backendURL string) string {
	host := backendURL
	for _, scheme := range []string{"wss://", "ws://", "https://", "http://"} {
		host = strings.TrimPrefix(host, scheme)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func splitTracesEndpoint(tracesEndpoint string) (endpoint, urlPath string, useSSL bool) {
	useSSL = true
	if strings.HasPrefix(tracesEndpoint, "https://") {
		tracesEndpoint = strings.TrimPrefix(tracesEndpoint, "https://")
	} else if strings.HasPrefix(tracesEndpoint, "http://") {
		useSSL = false
		tracesEndpoint = strings.TrimPrefix(tracesEndpoint, "http://")
	}

	parts := strings.SplitN(tracesEndpoint, "/", 2)
	endpoint = parts[0]
	if len(parts) > 1 {
		urlPath = "/" + parts[1]
	} else {
		urlPath = "/v1/traces"
	}
	return endpoint, urlPath, useSSL
}
