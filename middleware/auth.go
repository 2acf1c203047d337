package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const defaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	credential *models.APICredential
	expiresAt  time.Time
}

// Authenticator validates API credentials and carries them into the
// request context (§4.1: every submission call is scoped to an app via its
// credential).
type Authenticator struct {
	repo   *repository.CredentialRepository
	cache  *lru.Cache[string, cacheEntry]
	logger zerolog.Logger
}

// NewAuthenticator builds an Authenticator with an in-process LRU cache of
// the given size fronting credential lookups.
func NewAuthenticator(repo *repository.CredentialRepository, cacheSize int, logger zerolog.Logger) (*Authenticator, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Authenticator{repo: repo, cache: cache, logger: logger}, nil
}

// Authenticate extracts and validates the credential from the X-API-Key
// header, or a Bearer token in Authorization, and stores it on the request
// context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plaintext := extractKey(r)
		if plaintext == "" {
			writeAppErr(w, apperr.New(apperr.CodeUnauthorized, "API credential is required"))
			return
		}

		hash := repository.HashKey(plaintext)
		cred, err := a.lookup(r.Context(), hash)
		if err != nil {
			if err == repository.ErrNotFound {
				writeAppErr(w, apperr.New(apperr.CodeUnauthorized, "invalid API credential"))
				return
			}
			a.logger.Error().Err(err).Msg("credential lookup failed")
			writeAppErr(w, apperr.New(apperr.CodeInternal, "internal error"))
			return
		}

		if !cred.IsValid() {
			writeAppErr(w, apperr.New(apperr.CodeUnauthorized, "API credential is revoked or expired"))
			return
		}

		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.repo.UpdateLastUsed(ctx, cred.ID); err != nil {
				a.logger.Warn().Err(err).Msg("failed to stamp credential last-used time")
			}
			_ = id
		}(cred.ID.String())

		next.ServeHTTP(w, r.WithContext(withCredential(r.Context(), cred)))
	})
}

// RequireScope rejects requests whose credential lacks every one of the
// given scopes.
func RequireScope(scopes ...models.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := GetCredential(r.Context())
			if cred == nil {
				writeAppErr(w, apperr.New(apperr.CodeUnauthorized, "authentication required"))
				return
			}
			if !cred.HasAnyScope(scopes...) {
				writeAppErr(w, apperr.New(apperr.CodeForbidden, "credential lacks required scope"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) lookup(ctx context.Context, hash string) (*models.APICredential, error) {
	if entry, ok := a.cache.Get(hash); ok && time.Now().Before(entry.expiresAt) {
		return entry.credential, nil
	}

	cred, err := a.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	a.cache.Add(hash, cacheEntry{credential: cred, expiresAt: time.Now().Add(defaultCacheTTL)})
	return cred, nil
}

// InvalidateCache drops a cached lookup, called after rotation or
// revocation so the old secret stops authenticating immediately.
func (a *Authenticator) InvalidateCache(hash string) {
	a.cache.Remove(hash)
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeAppErr(w http.ResponseWriter, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(struct {
		Success bool          `json:"success"`
		Error   *apperr.Error `json:"error"`
	}{Success: false, Error: e})
}
