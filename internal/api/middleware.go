package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/metrics"
	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/storage"
)

type contextKey string

const tenantContextKey contextKey = "tenant"

func TenantFromContext(ctx context.Context) *models.Tenant {
	t, _ := ctx.Value(tenantContextKey).(*models.Tenant)
	return t
}

// AuthMiddleware resolves the tenant from a Bearer API key. The inbound
// webhook route does not pass through here; providers authenticate with
// signatures, not API keys.
func AuthMiddleware(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			apiKey := strings.TrimPrefix(auth, "Bearer ")
			if apiKey == auth {
				writeError(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <api_key>")
				return
			}

			tenant, err := store.GetTenantByAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if tenant == nil {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.statusCode)).Inc()
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
