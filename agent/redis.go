package agent

import (
	"context"
	"net"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WrapRedis adds OpenTelemetry instrumentation and exception reporting to
// a Redis client via hooks.
func (a *Agent) WrapRedis(client *redis.Client) error {
	client.AddHook(&redisHook{agent: a})
	return nil
}

// WrapRedisCluster is the cluster-client equivalent of WrapRedis.
func (a *Agent) WrapRedisCluster(client *redis.ClusterClient) error {
	client.AddHook(&redisHook{agent: a})
	return nil
}

type redisHook struct {
	agent *Agent
}

func (h *redisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *redisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := h.agent.tracer.Start(ctx, "redis."+cmd.Name())
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", cmd.Name()),
		)

		err := next(ctx, cmd)
		if err != nil && err != redis.Nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.agent.reportSpanError("redis."+cmd.Name(), err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}

func (h *redisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := h.agent.tracer.Start(ctx, "redis.pipeline")
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.Int("db.redis.pipeline_length", len(cmds)),
		)

		err := next(ctx, cmds)
		if err != nil && err != redis.Nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.agent.reportSpanError("redis.pipeline", err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
