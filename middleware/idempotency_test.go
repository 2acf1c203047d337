package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"id":"first"}}`))
	})
	mw := IdempotencyReplay(rdb, zerolog.Nop())(next)

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/emails", strings.NewReader("{}"))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, req)
		return rr
	}

	first := do("abc")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, calls)

	replay := do("abc")
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, first.Body.String(), replay.Body.String())
	require.Equal(t, "true", replay.Header().Get("X-Idempotent-Replay"))
	require.Equal(t, 1, calls, "handler must not run again on a replay")

	fresh := do("other-key")
	require.Equal(t, 2, calls)
	require.Empty(t, fresh.Header().Get("X-Idempotent-Replay"))
}

func TestIdempotencyReplaySkipsWithoutKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	mw := IdempotencyReplay(rdb, zerolog.Nop())(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/emails", strings.NewReader("{}"))
		mw.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyReplayIgnoresFailedResponses(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	mw := IdempotencyReplay(rdb, zerolog.Nop())(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/emails", strings.NewReader("{}"))
		req.Header.Set("Idempotency-Key", "retry-after-fix")
		mw.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls, "error responses are not cached, the caller may retry")
}
