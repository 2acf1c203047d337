package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledJob is a cron-driven template send (§3, §4.12).
type ScheduledJob struct {
	ID           uuid.UUID      `json:"id"`
	AppID        uuid.UUID      `json:"appId"`
	QueueID      uuid.UUID      `json:"queueId"`
	Name         string         `json:"name"`
	CronExpr     string         `json:"cronExpr"`
	Timezone     string         `json:"timezone"`
	TemplateID   uuid.UUID      `json:"templateId"`
	TemplateData map[string]any `json:"templateData,omitempty"`
	To           []Address      `json:"to"`
	Active       bool           `json:"active"`
	LastRunAt    *time.Time     `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time     `json:"nextRunAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CreateScheduledJobRequest is the body of POST /scheduled-jobs, reused for
// PUT since an update replaces the whole definition.
type CreateScheduledJobRequest struct {
	QueueID      uuid.UUID      `json:"queueId" validate:"required"`
	Name         string         `json:"name" validate:"required"`
	CronExpr     string         `json:"cronExpr" validate:"required"`
	Timezone     string         `json:"timezone,omitempty"`
	TemplateID   uuid.UUID      `json:"templateId" validate:"required"`
	TemplateData map[string]any `json:"templateData,omitempty"`
	To           []Address      `json:"to" validate:"required,min=1"`
	Active       *bool          `json:"active,omitempty"`
}
