package models

import "time"

import "github.com/google/uuid"

// EmailStatus is the state machine in spec §4.7.
type EmailStatus string

const (
	StatusQueued     EmailStatus = "queued"
	StatusProcessing EmailStatus = "processing"
	StatusSent       EmailStatus = "sent"
	StatusDelivered  EmailStatus = "delivered"
	StatusBounced    EmailStatus = "bounced"
	StatusFailed     EmailStatus = "failed"
	StatusCancelled  EmailStatus = "cancelled"
)

// IsTerminal reports whether no further status transition may persist.
func (s EmailStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusBounced, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Email is the central entity: one submitted message and its delivery
// lifecycle.
type Email struct {
	ID             uuid.UUID      `json:"id"`
	AppID          uuid.UUID      `json:"appId"`
	QueueID        uuid.UUID      `json:"queueId"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	MessageID      string         `json:"messageId,omitempty"`
	From           Address        `json:"from"`
	To             []Address      `json:"to"`
	CC             []Address      `json:"cc,omitempty"`
	BCC            []Address      `json:"bcc,omitempty"`
	ReplyTo        *Address       `json:"replyTo,omitempty"`
	Subject        string         `json:"subject"`
	HTML           string         `json:"html,omitempty"`
	Text           string         `json:"text,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Personalization map[string]any `json:"personalization,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Status         EmailStatus    `json:"status"`
	RetryCount     int            `json:"retryCount"`
	LastError      string         `json:"lastError,omitempty"`
	ScheduledAt    *time.Time     `json:"scheduledAt,omitempty"`
	SentAt         *time.Time     `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Recipients returns the distinct recipient addresses across to/cc/bcc, in
// order of first appearance, lower-cased for suppression lookups.
func (e *Email) Recipients() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]Address{e.To, e.CC, e.BCC} {
		for _, a := range group {
			addr := normalizeAddress(a.Email)
			if !seen[addr] {
				seen[addr] = true
				out = append(out, addr)
			}
		}
	}
	return out
}

// SubmitEmailRequest is the body of POST /emails.
type SubmitEmailRequest struct {
	Queue           string            `json:"queue" validate:"required"`
	From            Address           `json:"from" validate:"required"`
	To              []Address         `json:"to" validate:"required,min=1,dive"`
	CC              []Address         `json:"cc,omitempty" validate:"omitempty,dive"`
	BCC             []Address         `json:"bcc,omitempty" validate:"omitempty,dive"`
	ReplyTo         *Address          `json:"replyTo,omitempty"`
	Subject         string            `json:"subject"`
	HTML            string            `json:"html,omitempty"`
	Text            string            `json:"text,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Personalization map[string]any    `json:"personalization,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	TemplateID      *uuid.UUID        `json:"templateId,omitempty"`
	TemplateData    map[string]any    `json:"templateData,omitempty"`
	ScheduledAt     *time.Time        `json:"scheduledAt,omitempty"`
	IdempotencyKey  string            `json:"-"`
}

// BatchSubmitRequest is the body of POST /emails/batch (≤1000 items, §6).
type BatchSubmitRequest struct {
	Emails []SubmitEmailRequest `json:"emails" validate:"required,min=1,max=1000,dive"`
}

// SubmitResult is one item's outcome within a batch, or the whole result of
// a single submission.
type SubmitResult struct {
	ID       uuid.UUID   `json:"id,omitempty"`
	Status   EmailStatus `json:"status,omitempty"`
	QueuedAt time.Time   `json:"queuedAt,omitempty"`
	Error    *ErrorBody  `json:"error,omitempty"`
}

// EmailQuery filters GET /emails.
type EmailQuery struct {
	AppID   uuid.UUID
	QueueID *uuid.UUID
	Status  *EmailStatus
	Limit   int
	Offset  int
	Cursor  string
}
