package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestGetCredential(t *testing.T) {
	cases := []struct {
		name    string
		ctx     context.Context
		wantNil bool
	}{
		{"credential present", withCredential(context.Background(), &models.APICredential{ID: uuid.New()}), false},
		{"empty context", context.Background(), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GetCredential(tc.ctx)
			require.Equal(t, tc.wantNil, got == nil)
		})
	}
}

func TestRequireScope(t *testing.T) {
	cases := []struct {
		name       string
		scopes     []models.Scope
		require    []models.Scope
		wantStatus int
	}{
		{"has required scope", []models.Scope{models.ScopeEmailSend}, []models.Scope{models.ScopeEmailSend}, http.StatusOK},
		{"missing scope", []models.Scope{models.ScopeEmailRead}, []models.Scope{models.ScopeEmailSend}, http.StatusForbidden},
		{"admin implies every scope", []models.Scope{models.ScopeAdmin}, []models.Scope{models.ScopeEmailSend}, http.StatusOK},
		{"no credential at all", nil, []models.Scope{models.ScopeEmailSend}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.scopes != nil {
				cred := &models.APICredential{ID: uuid.New(), Active: true, Scopes: tc.scopes}
				req = req.WithContext(withCredential(req.Context(), cred))
			}

			rr := httptest.NewRecorder()
			h := RequireScope(tc.require...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			h.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestRateLimit_AllowsThenBlocks(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	limiter := ratelimit.New(rdb)
	limit := 2
	cred := &models.APICredential{ID: uuid.New(), Active: true, RateLimit: &limit}

	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/emails", nil)
		req = req.WithContext(withCredential(req.Context(), cred))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, do())
	require.Equal(t, http.StatusOK, do())
	require.Equal(t, http.StatusTooManyRequests, do())
}

func TestRateLimit_NoCredentialPassesThrough(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()

	limiter := ratelimit.New(rdb)
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/emails", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
