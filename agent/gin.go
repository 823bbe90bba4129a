package agent

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GinTracing returns a span-creating middleware distinct from GinRecover:
// call both (tracing first) to get request spans and exception capture in
// one chain, mirroring the teacher's GinMiddleware which combined the two
// concerns — split here so exception capture works even without a
// configured TracerProvider.
func (a *Agent) GinTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := ExtractClientIP(c.Request)

		opts := []otelgin.Option{otelgin.WithTracerProvider(otel.GetTracerProvider())}
		if clientIP != "" {
			opts = append(opts, otelgin.WithSpanStartOptions(
				trace.WithAttributes(attribute.String("http.client_ip", clientIP)),
			))
		}

		otelgin.Middleware("agent-go", opts...)(c)
	}
}
