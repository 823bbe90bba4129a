package agent

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCUnaryRecover is a unary server interceptor generalizing the teacher's
// GRPCServerInterceptors with the same recover-and-report shape as the
// HTTP-family adapters.
func GRPCUnaryRecover(a *Agent) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				desc := methodDescriptor{DeclaringType: info.FullMethod, MethodName: "Unary"}
				a.OnException(recoveredError(r), nil, desc, []interface{}{req})
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// GRPCStreamRecover is the equivalent stream server interceptor.
func GRPCStreamRecover(a *Agent) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				desc := methodDescriptor{DeclaringType: info.FullMethod, MethodName: "Stream"}
				a.OnException(recoveredError(r), nil, desc, nil)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(srv, ss)
	}
}
