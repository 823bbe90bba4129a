package agent

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
)

// GRPCServerTracingOptions returns gRPC server options carrying OpenTelemetry
// span instrumentation, separate from GRPCUnaryRecover/GRPCStreamRecover's
// exception-capture interceptors — pass both into grpc.NewServer.
func (a *Agent) GRPCServerTracingOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(otel.GetTracerProvider()))),
	}
}

// GRPCClientTracingOptions is the dial-side counterpart, for services that
// make outbound gRPC calls whose spans should join the same trace.
func (a *Agent) GRPCClientTracingOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler(otelgrpc.WithTracerProvider(otel.GetTracerProvider()))),
	}
}
