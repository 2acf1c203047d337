package models

import (
	"time"

	"github.com/google/uuid"
)

// SuppressionReason ranks by precedence where relevant (complaint outranks
// everything else, §3).
type SuppressionReason string

const (
	ReasonHardBounce SuppressionReason = "hard_bounce"
	ReasonSoftBounce SuppressionReason = "soft_bounce"
	ReasonComplaint  SuppressionReason = "complaint"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonManual     SuppressionReason = "manual"
)

// reasonRank gives the upgrade-on-conflict ordering: a higher rank always
// wins when an entry already exists for the same (appID, address).
var reasonRank = map[SuppressionReason]int{
	ReasonManual:      1,
	ReasonSoftBounce:  2,
	ReasonHardBounce:  3,
	ReasonUnsubscribe: 3,
	ReasonComplaint:   4,
}

// Outranks reports whether reason r should replace existing when both
// target the same suppression entry.
func (r SuppressionReason) Outranks(existing SuppressionReason) bool {
	return reasonRank[r] >= reasonRank[existing]
}

// SoftBounceExpiry is the spec's fixed TTL for soft bounces (§3, §4.9).
const SoftBounceExpiry = 7 * 24 * time.Hour

// Suppression is one blocklist entry. AppID nil means global (§3, §4.4).
type Suppression struct {
	ID          uuid.UUID         `json:"id"`
	AppID       *uuid.UUID        `json:"appId,omitempty"`
	Address     string            `json:"address"`
	Reason      SuppressionReason `json:"reason"`
	SourceEmailID *uuid.UUID      `json:"sourceEmailId,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Expired reports whether this entry should no longer be honoured.
func (s *Suppression) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// CheckSuppressionResult is the response of a single check(appId,address).
type CheckSuppressionResult struct {
	Address      string            `json:"address"`
	IsSuppressed bool              `json:"isSuppressed"`
	Reason       SuppressionReason `json:"reason,omitempty"`
	ExpiresAt    *time.Time        `json:"expiresAt,omitempty"`
}

// AddSuppressionRequest is the body of POST /suppression.
type AddSuppressionRequest struct {
	Address string            `json:"address" validate:"required,email"`
	Reason  SuppressionReason `json:"reason" validate:"required"`
	Global  bool              `json:"global,omitempty"`
}

// BulkSuppressionRequest is the body of POST /suppression/bulk.
type BulkSuppressionRequest struct {
	Addresses []string          `json:"addresses" validate:"required,min=1,dive,email"`
	Reason    SuppressionReason `json:"reason" validate:"required"`
	Global    bool              `json:"global,omitempty"`
}

// BulkSuppressionResult reports upsert counts for a bulk add.
type BulkSuppressionResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// CSVHeader is the suppression export/import file's fixed header (§6).
const CSVHeader = "email_address,reason,expires_at,created_at"

// SuppressionImportError reports one rejected CSV line (§8 boundary case).
type SuppressionImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// SuppressionImportResult is the response of POST /suppression/import.
type SuppressionImportResult struct {
	Imported int                       `json:"imported"`
	Errors   []SuppressionImportError  `json:"errors,omitempty"`
}
