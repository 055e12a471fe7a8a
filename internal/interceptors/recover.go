package interceptors

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/pribylovaa/jwt-auth-service/internal/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// msgInternal совпадает с текстом 500 в HTTP API.
const msgInternal = "Internal server error."

// Recover превращает панику обработчика в codes.Internal с тем же текстом,
// что и HTTP API. Стек и x-request-id вызова уходят только в лог.
func Recover(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			l := log.From(ctx)
			if l == slog.Default() && base != nil {
				l = base
			}
			l.Error("panic_recovered",
				slog.String("method", info.FullMethod),
				slog.String("request_id", requestIDFrom(ctx)),
				slog.Any("reason", rec),
				slog.String("stack", string(debug.Stack())),
			)

			resp, err = nil, status.Error(codes.Internal, msgInternal)
		}()

		return handler(ctx, req)
	}
}
