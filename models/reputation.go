package models

import (
	"time"

	"github.com/google/uuid"
)

// AppReputation is the per-app rolling score (§3, §4.10).
type AppReputation struct {
	AppID          uuid.UUID `json:"appId"`
	BounceRate24h  float64   `json:"bounceRate24h"`
	ComplaintRate24h float64 `json:"complaintRate24h"`
	Score          float64   `json:"score"`
	Throttled      bool      `json:"throttled"`
	ThrottleReason string    `json:"throttleReason,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ReputationThrottleBounceRate and ReputationThrottleComplaintRate are the
// throttle trigger thresholds from §4.10.
const (
	ReputationThrottleBounceRate    = 10.0
	ReputationThrottleComplaintRate = 1.0
)

// ComputeReputation derives score/throttle from raw 24h counters, per the
// formula in §4.10. sent/bounces/complaints are counts, not rates.
func ComputeReputation(sent, bounces, complaints int64) (bounceRate, complaintRate, score float64, throttled bool, reason string) {
	if sent > 0 {
		bounceRate = float64(bounces) / float64(sent) * 100
		complaintRate = float64(complaints) / float64(sent) * 100
	}
	score = 100 - 2*bounceRate - 20*complaintRate
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if bounceRate > ReputationThrottleBounceRate {
		throttled = true
		reason = "bounce_rate"
	}
	if complaintRate > ReputationThrottleComplaintRate {
		throttled = true
		if reason == "" {
			reason = "complaint_rate"
		}
	}
	return
}
