package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailJob is the broker body for the email lane: just enough to re-fetch
// the authoritative row, never a copy of its content (§5: the database row
// is the single source of truth; the queue only carries a pointer to it).
type EmailJob struct {
	EmailID uuid.UUID `json:"emailId"`
	AppID   uuid.UUID `json:"appId"`
	QueueID uuid.UUID `json:"queueId"`
}

// WebhookJob is the broker body for the webhook lane: the pointer to a
// pending webhook_deliveries row whose first attempt should happen now,
// instead of waiting out the next sweep interval.
type WebhookJob struct {
	DeliveryID uuid.UUID `json:"deliveryId"`
	AppID      uuid.UUID `json:"appId"`
}

// TrackingJob kinds.
const (
	TrackingKindOpen  = "open"
	TrackingKindClick = "click"
)

// TrackingJob is the broker body for the tracking lane: one open or click
// observation, recorded off the redirect/pixel request path so the HTTP
// response never waits on the event write.
type TrackingJob struct {
	Kind      string    `json:"kind"`
	EmailID   uuid.UUID `json:"emailId,omitempty"`
	Code      string    `json:"code,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// AnalyticsJob is the broker body for the analytics lane: one bucket
// increment for an app/event pair at a point in time.
type AnalyticsJob struct {
	AppID uuid.UUID `json:"appId"`
	Event EventType `json:"event"`
	At    time.Time `json:"at"`
}
