package middleware

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/faultline/internal/adapter/transport"
	"github.com/V4T54L/faultline/internal/domain"
)

// APIKeyHeader is the header reporting clients put their key in.
const APIKeyHeader = transport.APIKeyHeader

// Auth rejects requests whose X-ApiKey is missing or unknown. A failing key
// store answers 503 so clients spool the report instead of dropping it.
func Auth(keys domain.APIKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				reject(w, logger, r, "API key required")
				return
			}

			valid, err := keys.IsValid(r.Context(), key)
			switch {
			case err != nil:
				logger.Error("API key check failed", "error", err)
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			case !valid:
				reject(w, logger, r, "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func reject(w http.ResponseWriter, logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("Request rejected", "reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	http.Error(w, "Unauthorized: "+reason, http.StatusUnauthorized)
}
