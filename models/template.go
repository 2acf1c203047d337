package models

import (
	"time"

	"github.com/google/uuid"
)

// Template is a supplemented feature (see SPEC_FULL.md §12): a reusable
// subject/body pair substituted against a per-send data bag, referenced
// either directly from a submission or from a ScheduledJob's template
// bag.
type Template struct {
	ID        uuid.UUID `json:"id"`
	AppID     uuid.UUID `json:"appId"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html,omitempty"`
	Text      string    `json:"text,omitempty"`
	Variables []string  `json:"variables,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateTemplateRequest is the body of POST /templates.
type CreateTemplateRequest struct {
	Name      string   `json:"name" validate:"required"`
	Subject   string   `json:"subject" validate:"required"`
	HTML      string   `json:"html,omitempty"`
	Text      string   `json:"text,omitempty"`
	Variables []string `json:"variables,omitempty"`
}
