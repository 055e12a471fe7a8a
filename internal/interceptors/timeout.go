package interceptors

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// WithTimeout ставит дедлайн d, если у вызова его ещё нет. d <= 0 — без дедлайна.
//
// Голые context.DeadlineExceeded/Canceled из обработчика переводятся в
// codes.DeadlineExceeded/Canceled с текстами HTTP API; статусы gRPC не трогаются.
func WithTimeout(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); !ok && d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		resp, err := handler(ctx, req)
		return resp, contextStatus(err)
	}
}

func contextStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "Request timed out.")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "Request canceled.")
	default:
		return err
	}
}
