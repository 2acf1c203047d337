package models

import "github.com/google/uuid"

// CreateQueueRequest is the body of POST /queues.
type CreateQueueRequest struct {
	Name            string `json:"name" validate:"required"`
	Priority        int    `json:"priority" validate:"min=1,max=10"`
	RateLimit       *int   `json:"rateLimit,omitempty"`
	MaxRetries      *int   `json:"maxRetries,omitempty"`
	RetryDelay      []int  `json:"retryDelay,omitempty"`
	SMTPConfigID    string `json:"smtpConfigId,omitempty"`
	TrackingEnabled bool   `json:"trackingEnabled"`
}

// QueueStats is the response of GET /queues/{id}/stats: live counts by
// status.
type QueueStats struct {
	QueueID uuid.UUID             `json:"queueId"`
	Counts  map[EmailStatus]int64 `json:"counts"`
}
