package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }

func TestAPIKeyTierAllowsThenBlocks(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "cred-1", intPtr(2), "", nil, "", nil)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 2, res.APIKeyTier.Limit)
		require.Equal(t, 1-i, res.APIKeyTier.Remaining)
	}

	res, err := l.Check(ctx, "cred-1", intPtr(2), "", nil, "", nil)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, TierAPIKey, res.BlockedBy)
	require.Equal(t, 0, res.APIKeyTier.Remaining)
	require.True(t, res.APIKeyTier.ResetAt.After(time.Now()))
}

func TestNilLimitsSkipEveryTier(t *testing.T) {
	l := newTestLimiter(t)

	res, err := l.Check(context.Background(), "cred-1", nil, "app-1", nil, "q-1", nil)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Empty(t, res.BlockedBy)
	require.Empty(t, res.Tiers)
	require.Nil(t, res.APIKeyTier)
}

func TestQueueCapZeroBlocksEverySubmission(t *testing.T) {
	l := newTestLimiter(t)

	res, err := l.Check(context.Background(), "", nil, "", nil, "q-1", intPtr(0))
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, TierQueue, res.BlockedBy)
}

func TestTiersEvaluatedInOrder(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	// Exhaust the apiKey tier; the queue tier would also deny, but the
	// first denying tier in evaluation order wins.
	_, err := l.Check(ctx, "cred-2", intPtr(1), "", nil, "", nil)
	require.NoError(t, err)

	res, err := l.Check(ctx, "cred-2", intPtr(1), "app-2", int64Ptr(0), "q-2", intPtr(0))
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, TierAPIKey, res.BlockedBy)
	// Short-circuit: later tiers were never evaluated.
	require.Len(t, res.Tiers, 1)
}

func TestCountersAreIndependentPerKey(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	_, err := l.Check(ctx, "cred-a", intPtr(1), "", nil, "", nil)
	require.NoError(t, err)

	res, err := l.Check(ctx, "cred-b", intPtr(1), "", nil, "", nil)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestPeekQueueDoesNotIncrement(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	// Charge the window once via the submission path.
	_, err := l.Check(ctx, "", nil, "", nil, "q-3", intPtr(2))
	require.NoError(t, err)

	// Any number of dispatch-time peeks observe the same state.
	for i := 0; i < 5; i++ {
		tr, err := l.PeekQueue(ctx, "q-3", 2)
		require.NoError(t, err)
		require.True(t, tr.Allowed)
		require.Equal(t, 1, tr.Remaining)
	}
}

func TestPeekQueueAllowsWindowFilledToCap(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	// Two emails admitted under a cap of 2: the window is exactly full,
	// and both must still dispatch (their own charges are the fill).
	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "", nil, "", nil, "q-4", intPtr(2))
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	tr, err := l.PeekQueue(ctx, "q-4", 2)
	require.NoError(t, err)
	require.True(t, tr.Allowed)
	require.Equal(t, 0, tr.Remaining)
}

func TestPeekQueueBlocksOverCapWindow(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	// Three submissions against a cap of 2: the third is denied but its
	// attempt still shows as over-cap pressure in the window.
	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, "", nil, "", nil, "q-5", intPtr(2))
		require.NoError(t, err)
	}

	tr, err := l.PeekQueue(ctx, "q-5", 2)
	require.NoError(t, err)
	require.False(t, tr.Allowed)
	require.True(t, tr.ResetAt.After(time.Now()))
}

func TestPeekQueueEmptyWindow(t *testing.T) {
	l := newTestLimiter(t)

	tr, err := l.PeekQueue(context.Background(), "q-6", 3)
	require.NoError(t, err)
	require.True(t, tr.Allowed)
	require.Equal(t, 3, tr.Remaining)
}

func TestEarliestResetDelay(t *testing.T) {
	now := time.Now()
	tiers := []TierResult{
		{Tier: TierAPIKey, ResetAt: now.Add(45 * time.Second)},
		{Tier: TierQueue, ResetAt: now.Add(10 * time.Second)},
	}
	d := EarliestResetDelay(tiers)
	require.Greater(t, d, time.Duration(0))
	require.LessOrEqual(t, d, 10*time.Second)

	require.Equal(t, time.Minute, EarliestResetDelay(nil))

	// A reset in the past still yields a positive delay.
	past := []TierResult{{ResetAt: now.Add(-time.Second)}}
	require.Equal(t, time.Second, EarliestResetDelay(past))
}
