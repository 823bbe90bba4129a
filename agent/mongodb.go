package agent

import (
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/otel"
)

// MongoClientOptions returns MongoDB client options instrumented with
// OpenTelemetry; span errors surface through the Mongo command monitor's
// own tracing, which otelmongo already records — nothing further to
// forward here since the driver has no hook-based error callback the way
// redis does.
func (a *Agent) MongoClientOptions() *options.ClientOptions {
	opts := options.Client()
	opts.Monitor = otelmongo.NewMonitor(
		otelmongo.WithTracerProvider(otel.GetTracerProvider()),
	)
	return opts
}
