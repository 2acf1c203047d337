// Package broker implements the durable job queue (C5): an at-least-once
// leasing abstraction with per-lane delay support. Any backing store
// offering enqueue/lease/ack/nack with visibility timeouts satisfies the
// contract; the only implementation here is Redis-backed, grounded on the
// ready-list/retry-sorted-set split used elsewhere in the stack for the
// outbound email queue.
package broker

import (
	"context"
	"time"
)

// Job is a leased unit of work.
type Job struct {
	// LeaseID identifies this particular lease; Ack/Nack take it, not the
	// job's own ID, so a job redelivered after a lease expiry gets a new
	// lease token and a stale worker's ack is a harmless no-op.
	LeaseID string
	Lane    string
	Body    []byte
	// Attempt is incremented by the broker each time the job is leased,
	// independent of any retry count the caller tracks in its own payload.
	Attempt int
}

// Broker is the durable job queue contract (§9 Design Notes: "Broker
// abstraction").
type Broker interface {
	// Enqueue makes body available for lease on lane after delay elapses.
	// priority is a hint brokers may use to order within a lane;
	// RedisBroker serves higher priorities strictly first.
	Enqueue(ctx context.Context, lane string, priority int, delay time.Duration, body []byte) error

	// Lease blocks up to waitFor for the next due job on lane. It returns
	// (nil, nil) on timeout with nothing available. visibility bounds how
	// long the caller has to Ack/Nack before the job is eligible for
	// redelivery to another lease.
	Lease(ctx context.Context, lane string, visibility time.Duration, waitFor time.Duration) (*Job, error)

	// Ack removes a leased job permanently.
	Ack(ctx context.Context, leaseID string) error

	// Nack returns a leased job to the lane, available again after delay.
	Nack(ctx context.Context, leaseID string, delay time.Duration) error

	// ReapExpired promotes jobs whose lease has expired without an Ack/Nack
	// back onto their lane, and promotes due delayed jobs onto their ready
	// list. Meant to be called periodically: Lease itself only promotes due
	// delayed jobs for its own lane, so expired leases are recovered only by
	// this call.
	ReapExpired(ctx context.Context) (int, error)
}

// Lane names used across the pipeline (§4, §9). Consumers reference these
// constants rather than literal strings so a lane rename is one-line.
const (
	LaneEmail     = "email"
	LaneWebhook   = "webhook"
	LaneTracking  = "tracking"
	LaneAnalytics = "analytics"
	// LaneBounce, LaneComplaint and LaneDelivery carry the asynchronous
	// processBounce/processComplaint/processDelivery job bodies (§4.9 and
	// the sent→delivered transition of the email state machine). Their
	// producer is the out-of-band DSN/feedback-loop collector pinned as an
	// external collaborator in scope — this system only consumes what
	// lands on these lanes.
	LaneBounce    = "bounce"
	LaneComplaint = "complaint"
	LaneDelivery  = "delivery"
)
