package agent

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
)

// EchoTracing is the Echo counterpart to GinTracing: a span-creating
// middleware, separate from EchoRecover's exception-capture middleware.
func (a *Agent) EchoTracing() echo.MiddlewareFunc {
	return otelecho.Middleware("agent-go", otelecho.WithTracerProvider(otel.GetTracerProvider()))
}
