package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// RequestLogger puts a logger carrying the request fields on the context,
// where handlers find it with logger.FromContext. It reads the correlation
// id, the Auth claims and the span, so it goes after RequestLogging, Tracing
// and Auth.
//
// The caller identity comes from Auth claims only; identity headers sent by
// clients are not trusted.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if c := ClaimsFromContext(ctx); c != nil && c.UserID != "" {
				ctx = logger.WithUserID(ctx, c.UserID)
			}
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, logger.WithContext(ctx, base))))
		})
	}
}
