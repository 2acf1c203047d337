// Package models contains the persistent entity types shared by every
// package in the repository: repositories read and write them, services
// operate on them, and handlers (de)serialize them at the HTTP boundary.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Address is an RFC-5322 simple mailbox: an address with an optional
// display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// App is the tenant entity. The core treats it as read-only: apps are
// created and deleted by the surrounding account-management system, which
// is out of scope here.
type App struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Sandbox     bool      `json:"sandbox"`
	Active      bool      `json:"active"`
	WebhookURL  string    `json:"webhookUrl,omitempty"`
	WebhookSecret string  `json:"-"`
	DailyLimit  *int64    `json:"dailyLimit,omitempty"`
	MonthlyLimit *int64   `json:"monthlyLimit,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Queue is a named send lane within an app.
type Queue struct {
	ID          uuid.UUID  `json:"id"`
	AppID       uuid.UUID  `json:"appId"`
	Name        string     `json:"name"`
	Priority    int        `json:"priority"`
	RateLimit   *int       `json:"rateLimit,omitempty"`
	MaxRetries  int        `json:"maxRetries"`
	RetryDelay  []int      `json:"retryDelay"`
	SMTPConfigID *uuid.UUID `json:"smtpConfigId,omitempty"`
	Paused      bool       `json:"paused"`
	TrackingEnabled bool   `json:"trackingEnabled"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// DefaultRetryDelay is the spec's default retry delay vector in seconds.
var DefaultRetryDelay = []int{30, 120, 600, 3600, 86400}

// DefaultMaxRetries is the spec's default per-queue retry ceiling.
const DefaultMaxRetries = 5

// EncryptionMode enumerates the SMTP transport security modes.
type EncryptionMode string

const (
	EncryptionTLS      EncryptionMode = "tls"
	EncryptionSTARTTLS EncryptionMode = "starttls"
	EncryptionNone     EncryptionMode = "none"
)

// SMTPConfig describes one outbound relay an app can bind a queue to.
type SMTPConfig struct {
	ID         uuid.UUID      `json:"id"`
	AppID      uuid.UUID      `json:"appId"`
	Name       string         `json:"name"`
	Host       string         `json:"host"`
	Port       int            `json:"port"`
	Username   string         `json:"username,omitempty"`
	Password   string         `json:"-"`
	Encryption EncryptionMode `json:"encryption"`
	PoolSize   int            `json:"poolSize"`
	TimeoutMs  int            `json:"timeoutMs"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Pagination is the offset-style list envelope (§6, Open Question 2: offset
// and cursor pagination are treated as interchangeable orderings).
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// CursorPage is the cursor-style list envelope.
type CursorPage struct {
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"hasMore"`
}

// APIResponse is the standard success envelope.
type APIResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// APIError is the standard error envelope.
type APIError struct {
	Success bool        `json:"success"`
	Error   *ErrorBody  `json:"error"`
}

// ErrorBody carries the taxonomy entry (§7).
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
