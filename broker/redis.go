package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBroker is the Redis-backed Broker implementation. Enqueue/lease is
// grounded on the ready-list + delayed-sorted-set split used for the
// outbound email queue elsewhere in the stack (RPush for ready work, ZAdd
// scored by due-time for delayed work, promoted into the ready list by
// ZRangeByScore + pipelined RPush/ZRem). Leasing adds a processing
// sorted set scored by lease deadline, so an expired lease is recovered
// the same way a delayed job is promoted.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker constructs a RedisBroker over an already-connected client.
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

const minPriority, maxPriority = 1, 10

func clampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

func readyKey(lane string, priority int) string {
	return fmt.Sprintf("broker:%s:ready:%d", lane, clampPriority(priority))
}

func delayedKey(lane string) string {
	return "broker:" + lane + ":delayed"
}

func processingKey(lane string) string {
	return "broker:" + lane + ":processing"
}

func jobKey(jobID string) string {
	return "broker:job:" + jobID
}

func leaseKey(leaseID string) string {
	return "broker:lease:" + leaseID
}

// readyKeysHighToLow returns every priority bucket for lane, highest first,
// so BLPOP always pops from the highest non-empty bucket: a lower bucket
// is drained only once every higher one is empty, so a steady stream of
// higher-priority work holds lower-priority jobs back.
func readyKeysHighToLow(lane string) []string {
	keys := make([]string, 0, maxPriority)
	for p := maxPriority; p >= minPriority; p-- {
		keys = append(keys, readyKey(lane, p))
	}
	return keys
}

// Enqueue implements Broker.
func (b *RedisBroker) Enqueue(ctx context.Context, lane string, priority int, delay time.Duration, body []byte) error {
	jobID := uuid.New().String()
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), map[string]any{
		"lane":     lane,
		"body":     body,
		"priority": priority,
		"attempt":  0,
	})
	if delay > 0 {
		pipe.ZAdd(ctx, delayedKey(lane), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: jobID + ":" + strconv.Itoa(clampPriority(priority)),
		})
	} else {
		pipe.RPush(ctx, readyKey(lane, priority), jobID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Lease implements Broker.
func (b *RedisBroker) Lease(ctx context.Context, lane string, visibility, waitFor time.Duration) (*Job, error) {
	if _, err := b.promoteDueDelayed(ctx, lane); err != nil {
		return nil, err
	}

	res, err := b.rdb.BLPop(ctx, waitFor, readyKeysHighToLow(lane)...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	jobID := res[1]

	fields, err := b.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		// Job hash vanished (acked twice, expired without cleanup). Not an
		// error; the caller simply has nothing to do this round.
		return nil, nil
	}

	attempt, _ := strconv.Atoi(fields["attempt"])
	attempt++

	leaseID := uuid.New().String()
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID), "attempt", attempt)
	pipe.ZAdd(ctx, processingKey(lane), redis.Z{
		Score:  float64(time.Now().Add(visibility).UnixMilli()),
		Member: jobID,
	})
	pipe.Set(ctx, leaseKey(leaseID), lane+":"+jobID, visibility+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &Job{
		LeaseID: leaseID,
		Lane:    lane,
		Body:    []byte(fields["body"]),
		Attempt: attempt,
	}, nil
}

// resolveLease returns (lane, jobID) for a lease, or ok=false if unknown.
func (b *RedisBroker) resolveLease(ctx context.Context, leaseID string) (lane, jobID string, ok bool, err error) {
	v, err := b.rdb.Get(ctx, leaseKey(leaseID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	for i := 0; i < len(v); i++ {
		if v[i] == ':' {
			return v[:i], v[i+1:], true, nil
		}
	}
	return "", "", false, nil
}

// Ack implements Broker.
func (b *RedisBroker) Ack(ctx context.Context, leaseID string) error {
	lane, jobID, ok, err := b.resolveLease(ctx, leaseID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	pipe := b.rdb.TxPipeline()
	pipe.ZRem(ctx, processingKey(lane), jobID)
	pipe.Del(ctx, jobKey(jobID))
	pipe.Del(ctx, leaseKey(leaseID))
	_, err = pipe.Exec(ctx)
	return err
}

// Nack implements Broker.
func (b *RedisBroker) Nack(ctx context.Context, leaseID string, delay time.Duration) error {
	lane, jobID, ok, err := b.resolveLease(ctx, leaseID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	fields, err := b.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return err
	}
	priority, _ := strconv.Atoi(fields["priority"])

	pipe := b.rdb.TxPipeline()
	pipe.ZRem(ctx, processingKey(lane), jobID)
	pipe.Del(ctx, leaseKey(leaseID))
	if delay > 0 {
		pipe.ZAdd(ctx, delayedKey(lane), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: jobID + ":" + strconv.Itoa(clampPriority(priority)),
		})
	} else {
		pipe.RPush(ctx, readyKey(lane, priority), jobID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// promoteDueDelayed moves due delayed jobs for lane onto their priority
// ready list.
func (b *RedisBroker) promoteDueDelayed(ctx context.Context, lane string) (int, error) {
	now := float64(time.Now().UnixMilli())
	members, err := b.rdb.ZRangeByScore(ctx, delayedKey(lane), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatFloat(now, 'f', 0, 64), Count: 200,
	}).Result()
	if err != nil || len(members) == 0 {
		return 0, err
	}

	pipe := b.rdb.TxPipeline()
	for _, m := range members {
		jobID, priority := splitDelayedMember(m)
		pipe.RPush(ctx, readyKey(lane, priority), jobID)
		pipe.ZRem(ctx, delayedKey(lane), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(members), nil
}

func splitDelayedMember(m string) (jobID string, priority int) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] == ':' {
			p, _ := strconv.Atoi(m[i+1:])
			return m[:i], p
		}
	}
	return m, 5
}

// reapExpiredLeases promotes processing entries whose lease deadline has
// passed back onto their ready list, the recovery path for a crashed or
// stalled worker (§9 Design Notes).
func (b *RedisBroker) reapExpiredLeases(ctx context.Context, lane string) (int, error) {
	now := float64(time.Now().UnixMilli())
	jobIDs, err := b.rdb.ZRangeByScore(ctx, processingKey(lane), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatFloat(now, 'f', 0, 64), Count: 200,
	}).Result()
	if err != nil || len(jobIDs) == 0 {
		return 0, err
	}

	n := 0
	for _, jobID := range jobIDs {
		fields, err := b.rdb.HGetAll(ctx, jobKey(jobID)).Result()
		if err != nil {
			return n, err
		}
		if len(fields) == 0 {
			b.rdb.ZRem(ctx, processingKey(lane), jobID)
			continue
		}
		priority, _ := strconv.Atoi(fields["priority"])
		pipe := b.rdb.TxPipeline()
		pipe.ZRem(ctx, processingKey(lane), jobID)
		pipe.RPush(ctx, readyKey(lane, priority), jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// knownLanes lists the lanes ReapExpired sweeps, since the Broker interface
// has no lane-enumeration operation of its own.
var knownLanes = []string{LaneEmail, LaneWebhook, LaneTracking, LaneAnalytics, LaneBounce, LaneComplaint, LaneDelivery}

// ReapExpired implements Broker.
func (b *RedisBroker) ReapExpired(ctx context.Context) (int, error) {
	total := 0
	for _, lane := range knownLanes {
		n, err := b.promoteDueDelayed(ctx, lane)
		if err != nil {
			return total, err
		}
		total += n
		n, err = b.reapExpiredLeases(ctx, lane)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
