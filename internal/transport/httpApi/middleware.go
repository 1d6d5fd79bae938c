package httpApi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
)

const requestIDHeader = "X-Request-ID"

type userIDKey struct{}

type TokenParser interface {
	Parse(token string) (int64, error)
}

// RequestID stores the caller's X-Request-ID, or a new one, as the rqID of the request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := utils.CtxWithRqID(r.Context(), r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, utils.GetRequestIDFromCtx(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.Info(
			"http request",
			slog.String("rqID", utils.GetRequestIDFromCtx(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Int64("durationMS", time.Since(start).Milliseconds()),
		)
	})
}

// Authenticator rejects requests without a valid bearer token and stores the
// token's user id in the request context.
func (h *Handler) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := jwtauth.TokenFromHeader(r)
		if token == "" {
			h.handleError(w, r, Unauthorized("missing bearer token"))
			return
		}

		userID, err := h.tokens.Parse(token)
		if err != nil {
			slog.Info("rejected token", slog.String("rqID", utils.GetRequestIDFromCtx(r.Context())), slog.String("err", err.Error()))
			h.handleError(w, r, Unauthorized("invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func userIDFromCtx(ctx context.Context) int64 {
	userID, _ := ctx.Value(userIDKey{}).(int64)
	return userID
}
