package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/com2u/Pickup/internal/core/domain"
)

type contextKey int

const identityKey contextKey = iota

func identityFrom(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(domain.Identity)
	return ident, ok
}

// requireAuth resolves the bearer token to an identity and attaches it to
// the request context. The core never sees unauthenticated calls.
func (h *HTTPHandler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid token format")
			return
		}

		ident, _, err := h.auth.Identify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token is not valid")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, ident)))
	})
}

// idempotencyGuard claims the optional Idempotency-Key header before a
// mutating request runs; a replay of the same key is rejected.
func (h *HTTPHandler) idempotencyGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		ok, err := h.cache.ClaimIdempotencyKey(r.Context(), key)
		if err != nil {
			h.log.Error("idempotency check failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, domain.ErrDuplicateRequest.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
