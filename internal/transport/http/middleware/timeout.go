package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/jwt-auth-service/internal/pkg/log"
	apierrors "github.com/pribylovaa/jwt-auth-service/internal/transport/http/errors"
)

// Timeout ограничивает обработку запроса дедлайном d (если у запроса его ещё нет).
//
// Если дедлайн истёк, а обработчик так ничего и не записал, клиент получает
// 504 в едином JSON-формате ошибок. d <= 0 — мидлвар отключён.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.status != 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}

			log.From(ctx).Warn("request_timeout",
				slog.String("path", r.URL.Path),
				slog.Duration("timeout", d),
			)
			apierrors.WriteError(w, r, ctx.Err())
		})
	}
}
