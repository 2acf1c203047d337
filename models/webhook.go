package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventType enumerates the event names webhooks fire for.
type WebhookEventType string

const (
	WebhookEmailSent       WebhookEventType = "email.sent"
	WebhookEmailDelivered  WebhookEventType = "email.delivered"
	WebhookEmailBounced    WebhookEventType = "email.bounced"
	WebhookEmailFailed     WebhookEventType = "email.failed"
	WebhookEmailComplained WebhookEventType = "email.complained"
	WebhookEmailOpened     WebhookEventType = "email.opened"
	WebhookEmailClicked    WebhookEventType = "email.clicked"
)

// WebhookDeliveryStatus is the lifecycle in §3/§4.11.
type WebhookDeliveryStatus string

const (
	WebhookPending   WebhookDeliveryStatus = "pending"
	WebhookDelivered WebhookDeliveryStatus = "delivered"
	WebhookFailed    WebhookDeliveryStatus = "failed"
)

// MaxWebhookAttempts is the spec's 5-attempt ceiling (§4.11, invariant 4).
const MaxWebhookAttempts = 5

// WebhookRetryDelays[n-1] is the wait in seconds after failed attempt n
// before the next attempt (§4.11). Only the first four entries are used:
// the fifth failure is final (MaxWebhookAttempts).
var WebhookRetryDelays = []int{60, 300, 1800, 3600, 14400}

// WebhookDelivery is one queued/attempted outbound notification.
type WebhookDelivery struct {
	ID          uuid.UUID             `json:"id"`
	AppID       uuid.UUID             `json:"appId"`
	EmailID     *uuid.UUID            `json:"emailId,omitempty"`
	EventType   WebhookEventType      `json:"eventType"`
	Payload     WebhookPayload        `json:"payload"`
	Status      WebhookDeliveryStatus `json:"status"`
	Attempts    int                   `json:"attempts"`
	LastError   string                `json:"lastError,omitempty"`
	NextRetryAt *time.Time            `json:"nextRetryAt,omitempty"`
	DeliveredAt *time.Time            `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// WebhookPayload is the body signed and POSTed to the subscriber (§4.11).
type WebhookPayload struct {
	ID        uuid.UUID        `json:"id"`
	Type      WebhookEventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      WebhookData      `json:"data"`
}

// WebhookData is the event-specific body nested under "data".
type WebhookData struct {
	EmailID   uuid.UUID      `json:"emailId"`
	MessageID string         `json:"messageId,omitempty"`
	AppID     uuid.UUID      `json:"appId"`
	QueueName string         `json:"queueName"`
	From      string         `json:"from"`
	To        []string       `json:"to"`
	Subject   string         `json:"subject"`
	Status    EmailStatus    `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Event     *InnerEvent    `json:"event,omitempty"`
}

// InnerEvent carries the triggering EmailEvent when the webhook wraps one.
type InnerEvent struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
