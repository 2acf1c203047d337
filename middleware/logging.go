package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per completed request, tagging it with the
// authenticated credential's prefix when present.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				var prefix string
				if cred := GetCredential(r.Context()); cred != nil {
					prefix = cred.Prefix
				}

				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("remote_addr", r.RemoteAddr).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("credential", prefix).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Recoverer logs a panic and responds with a generic internal error instead
// of crashing the process.
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("request_id", chimw.GetReqID(r.Context())).
						Msg("panic recovered")
					http.Error(w, `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal error"}}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
