// Package ratelimit implements the hierarchical rate limiter (C2): three
// fixed-window tiers evaluated in order, keyed by the §4.3 window/key
// scheme. Grounded on the sibling SMS gateway's tiered Limiter (per-minute/
// per-hour/per-day INCR+EXPIRE checks, each independently denying), adapted
// from its three calendar windows to the spec's apiKey/appDaily/queue
// tiers.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tier names (§4.3).
const (
	TierAPIKey   = "apiKey"
	TierAppDaily = "appDaily"
	TierQueue    = "queue"
)

// TierResult is one tier's verdict.
type TierResult struct {
	Tier      string    `json:"tier"`
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Result is the combined verdict across every evaluated tier.
type Result struct {
	Allowed   bool
	BlockedBy string // first denying tier, empty if allowed
	Tiers     []TierResult
	// APIKeyTier mirrors the apiKey tier's numbers for the X-RateLimit-*
	// response headers (§4.3).
	APIKeyTier *TierResult
}

// Limiter evaluates the three-tier hierarchy against Redis fixed-window
// counters.
type Limiter struct {
	rdb *redis.Client
}

// New constructs a Limiter.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// Check evaluates all three tiers for a submission. A nil limit for a tier
// means "skip" (§4.3: "null ⇒ skip"). Tiers are evaluated in order and
// short-circuit on the first denial, but counters for already-evaluated
// tiers are NOT rolled back — a denial still counts against earlier tiers,
// matching the teacher's CheckAPI short-circuit which returns on the first
// failing tier without undoing prior increments.
func (l *Limiter) Check(ctx context.Context, credentialID string, apiKeyLimit *int, appID string, appDailyLimit *int64, queueID string, queueLimit *int) (*Result, error) {
	res := &Result{Allowed: true}

	if apiKeyLimit != nil {
		tr, err := l.checkWindow(ctx, TierAPIKey, credentialID, *apiKeyLimit, time.Minute)
		if err != nil {
			return nil, err
		}
		res.Tiers = append(res.Tiers, *tr)
		res.APIKeyTier = tr
		if !tr.Allowed {
			res.Allowed = false
			res.BlockedBy = TierAPIKey
			return res, nil
		}
	}

	if appDailyLimit != nil {
		tr, err := l.checkWindow(ctx, TierAppDaily, appID, int(*appDailyLimit), 24*time.Hour)
		if err != nil {
			return nil, err
		}
		res.Tiers = append(res.Tiers, *tr)
		if !tr.Allowed {
			res.Allowed = false
			res.BlockedBy = TierAppDaily
			return res, nil
		}
	}

	if queueLimit != nil {
		tr, err := l.checkWindow(ctx, TierQueue, queueID, *queueLimit, time.Minute)
		if err != nil {
			return nil, err
		}
		res.Tiers = append(res.Tiers, *tr)
		if !tr.Allowed {
			res.Allowed = false
			res.BlockedBy = TierQueue
			return res, nil
		}
	}

	return res, nil
}

// PeekQueue re-reads the queue tier's current window without incrementing
// it, for the worker's dispatch-time re-check (§4.3: counters are charged
// once on the submission path; "the email worker does not increment again
// on dispatch"). Allowed uses the same post-increment comparison shape as
// checkWindow, so an email whose own submission-time charge filled the
// window to exactly its cap still dispatches; only a window showing
// over-cap pressure defers the job to the next reset.
func (l *Limiter) PeekQueue(ctx context.Context, queueID string, limit int) (*TierResult, error) {
	return l.peekWindow(ctx, TierQueue, queueID, limit, time.Minute)
}

func (l *Limiter) peekWindow(ctx context.Context, tier, id string, limit int, window time.Duration) (*TierResult, error) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", tier, id, bucket)
	resetAt := time.Unix((bucket+1)*int64(window.Seconds()), 0)

	count, err := l.rdb.Get(ctx, key).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, err
		}
		count = 0
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &TierResult{
		Tier:      tier,
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// checkWindow implements the fixed-window counter: key is
// "{tier}:{id}:{floor(now/windowSize)}" (§4.3), INCR'd with an EXPIRE set
// only on first creation of that window's key.
func (l *Limiter) checkWindow(ctx context.Context, tier, id string, limit int, window time.Duration) (*TierResult, error) {
	now := time.Now()
	bucket := now.Unix() / int64(window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", tier, id, bucket)
	resetAt := time.Unix((bucket+1)*int64(window.Seconds()), 0)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if count == 1 {
		l.rdb.Expire(ctx, key, window+time.Second)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &TierResult{
		Tier:      tier,
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// EarliestResetDelay returns how long until the soonest-resetting of the
// given tiers rolls over, used by the worker to schedule a rate-limited
// job's re-enqueue delay (§4.2 step 2).
func EarliestResetDelay(tiers []TierResult) time.Duration {
	if len(tiers) == 0 {
		return time.Minute
	}
	earliest := tiers[0].ResetAt
	for _, t := range tiers[1:] {
		if t.ResetAt.Before(earliest) {
			earliest = t.ResetAt
		}
	}
	d := time.Until(earliest)
	if d < 0 {
		d = time.Second
	}
	return d
}
