package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// idempotencyTTL is the replay window for cached POST responses (§5:
// "within a 24 h window").
const idempotencyTTL = 24 * time.Hour

type cachedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// responseRecorder tees the response to the client while keeping a copy
// for the idempotency cache.
type responseRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyReplay caches the response of any successful POST carrying an
// Idempotency-Key header, keyed per app/path/key, and replays it verbatim
// on a repeat within the window. Runs after authentication so the cache
// key is tenant-scoped; a Redis outage degrades to pass-through (the
// submission service's own (appId, idempotencyKey) uniqueness still holds
// the hard invariant, this cache only restores the original response body).
func IdempotencyReplay(rdb *redis.Client, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := fmt.Sprintf("idempotency:%s:%s:%s", GetAppID(r.Context()), r.URL.Path, key)
			if data, err := rdb.Get(r.Context(), cacheKey).Bytes(); err == nil {
				var cached cachedResponse
				if json.Unmarshal(data, &cached) == nil {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Idempotent-Replay", "true")
					w.WriteHeader(cached.Status)
					w.Write(cached.Body)
					return
				}
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				data, err := json.Marshal(cachedResponse{Status: rec.status, Body: rec.buf.Bytes()})
				if err == nil {
					err = rdb.Set(r.Context(), cacheKey, data, idempotencyTTL).Err()
				}
				if err != nil {
					logger.Warn().Err(err).Str("path", r.URL.Path).Msg("failed to cache idempotent response")
				}
			}
		})
	}
}
