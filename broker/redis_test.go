package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBroker(rdb)
}

func TestEnqueueLeaseAck(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, LaneEmail, 5, 0, []byte(`{"x":1}`)))

	job, err := b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, LaneEmail, job.Lane)
	require.Equal(t, []byte(`{"x":1}`), job.Body)
	require.Equal(t, 1, job.Attempt)

	require.NoError(t, b.Ack(ctx, job.LeaseID))

	job, err = b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestLeaseEmptyLaneTimesOut(t *testing.T) {
	b := newTestBroker(t)

	job, err := b.Lease(context.Background(), LaneTracking, time.Minute, 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestHigherPriorityLeasedFirst(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, LaneEmail, 1, 0, []byte("low")))
	require.NoError(t, b.Enqueue(ctx, LaneEmail, 10, 0, []byte("high")))

	job, err := b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, []byte("high"), job.Body)

	job, err = b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, []byte("low"), job.Body)
}

func TestDelayedJobNotVisibleUntilDue(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, LaneEmail, 5, 50*time.Millisecond, []byte("later")))

	// Not due yet: the promote pass at lease time skips it.
	job, err := b.Lease(ctx, LaneEmail, time.Minute, 10*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)

	time.Sleep(60 * time.Millisecond)

	job, err = b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, []byte("later"), job.Body)
}

func TestNackRedeliversWithIncrementedAttempt(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, LaneEmail, 5, 0, []byte("retry-me")))

	job, err := b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, b.Nack(ctx, job.LeaseID, 0))

	again, err := b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, []byte("retry-me"), again.Body)
	require.Equal(t, 2, again.Attempt)
	require.NotEqual(t, job.LeaseID, again.LeaseID)
}

func TestReapExpiredRecoversAbandonedLease(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, LaneEmail, 5, 0, []byte("crashed")))

	job, err := b.Lease(ctx, LaneEmail, 20*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	// Simulate a worker that died without ack/nack: wait out the
	// visibility window, then reap.
	time.Sleep(30 * time.Millisecond)
	n, err := b.ReapExpired(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)

	again, err := b.Lease(ctx, LaneEmail, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, []byte("crashed"), again.Body)
}

func TestAckUnknownLeaseIsNoOp(t *testing.T) {
	b := newTestBroker(t)
	require.NoError(t, b.Ack(context.Background(), "not-a-lease"))
	require.NoError(t, b.Nack(context.Background(), "not-a-lease", 0))
}

func TestLanesAreIsolated(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, LaneWebhook, 5, 0, []byte("hook")))

	job, err := b.Lease(ctx, LaneEmail, time.Minute, 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)

	job, err = b.Lease(ctx, LaneWebhook, time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, []byte("hook"), job.Body)
}
