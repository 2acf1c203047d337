package middleware

import (
	"net/http"
	"strconv"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/ratelimit"
)

// RateLimit applies the apiKey tier (§4.3) to every authenticated request;
// it passes no appDaily or queue limit, so those tiers are checked inside
// the submission service, where the app's daily limit and the target queue
// are known.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := GetCredential(r.Context())
			if cred == nil {
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Check(r.Context(), cred.ID.String(), cred.RateLimit, cred.AppID.String(), nil, "", nil)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if res.APIKeyTier != nil {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.APIKeyTier.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.APIKeyTier.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.APIKeyTier.ResetAt.Unix(), 10))
			}

			if !res.Allowed {
				delay := ratelimit.EarliestResetDelay(res.Tiers)
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())))
				writeAppErr(w, apperr.New(apperr.CodeRateLimitExceeded, "rate limit exceeded, tier: "+res.BlockedBy))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
