package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingLink is a persisted short-code redirect (§3, §4.5). Unlike the
// reference implementation, which encodes the destination directly into a
// base64url-JSON blob embedded in the URL, this system persists the
// mapping and hands out an opaque 10-character base62 code: the code
// carries no information about the destination, matching invariant 6 (two
// distinct emails never share a code) and letting click counts accumulate
// server-side.
type TrackingLink struct {
	ID          uuid.UUID `json:"id"`
	EmailID     uuid.UUID `json:"emailId"`
	ShortCode   string    `json:"shortCode"`
	OriginalURL string    `json:"originalUrl"`
	ClickCount  int64     `json:"clickCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DeviceInfo is derived from the User-Agent header on open/click.
type DeviceInfo struct {
	Type    string `json:"type,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	IsBot   bool   `json:"isBot,omitempty"`
}
