package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the append-only email_events log (§3).
type EventType string

const (
	EventQueued       EventType = "queued"
	EventProcessing   EventType = "processing"
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
	EventCancelled    EventType = "cancelled"
	EventFailed       EventType = "failed"
)

// EmailEvent is one append-only row in an email's history.
type EmailEvent struct {
	ID        uuid.UUID      `json:"id"`
	EmailID   uuid.UUID      `json:"emailId"`
	EventType EventType      `json:"eventType"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
