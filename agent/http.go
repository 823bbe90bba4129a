package agent

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// clientIPSpanTagger records the caller's IP on the current span, the Go
// analogue of the teacher's http.go clientIPMiddleware.
type clientIPSpanTagger struct {
	next http.Handler
}

func (m *clientIPSpanTagger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ip := ExtractClientIP(r); ip != "" {
		span := trace.SpanFromContext(r.Context())
		if span.SpanContext().IsValid() {
			span.SetAttributes(attribute.String("http.client_ip", ip))
		}
	}
	m.next.ServeHTTP(w, r)
}

// HTTPTracing wraps handler with OpenTelemetry span instrumentation plus
// client-IP tagging, separate from HTTPRecover's exception-capture wrapper
// — chain both around the same handler.
func (a *Agent) HTTPTracing(handler http.Handler, operation string) http.Handler {
	traced := otelhttp.NewHandler(handler, operation, otelhttp.WithTracerProvider(otel.GetTracerProvider()))
	return &clientIPSpanTagger{next: traced}
}

// HTTPClient wraps client's transport with OpenTelemetry span
// instrumentation for outgoing calls, so downstream traces join whatever
// trace the calling request belongs to.
func (a *Agent) HTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	client.Transport = otelhttp.NewTransport(client.Transport,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
	)
	return client
}
