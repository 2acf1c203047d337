// Package tracking implements the Tracking Rewriter (C4): short-code link
// rewriting, open-pixel injection, and the open/click recording path that
// feeds analytics and webhooks. Grounded on the reference TrackingService's
// href regexp rewrite and device-info parsing, adapted from its inline
// base64url-JSON redirect scheme to persisted opaque short codes (§4.5).
package tracking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/google/uuid"
)

const shortCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const shortCodeLen = 10
const maxCollisionRetries = 10

// transparentGIF is the fixed 43-byte 1x1 transparent GIF returned by the
// open-pixel endpoint (§4.5).
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00,
	0x01, 0x00, 0x80, 0x00, 0x00, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// TransparentGIF returns the fixed pixel body.
func TransparentGIF() []byte { return transparentGIF }

var hrefRe = regexp.MustCompile(`(?i)href=(["'])([^"']+)(["'])`)

// Rewriter rewrites outgoing HTML bodies and records open/click events.
type Rewriter struct {
	linkRepo  *repository.TrackingLinkRepository
	eventRepo *repository.EventRepository
	baseURL   string
}

// New constructs a Rewriter. baseURL is the externally-reachable host the
// system is served from, e.g. "https://track.example.com".
func New(linkRepo *repository.TrackingLinkRepository, eventRepo *repository.EventRepository, baseURL string) *Rewriter {
	return &Rewriter{linkRepo: linkRepo, eventRepo: eventRepo, baseURL: strings.TrimRight(baseURL, "/")}
}

func generateShortCode() (string, error) {
	buf := make([]byte, shortCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, shortCodeLen)
	for i, b := range buf {
		out[i] = shortCodeAlphabet[int(b)%len(shortCodeAlphabet)]
	}
	return string(out), nil
}

// RewriteLinks replaces every http/https href in html with a tracking
// redirect, leaving other schemes (mailto/tel/anchor/javascript), URLs
// already under the tracking base, and the unsubscribe link untouched.
// Each destination gets its own persisted TrackingLink, retried up to
// maxCollisionRetries times on a short-code collision (§4.5, invariant 6:
// codes are globally unique).
func (r *Rewriter) RewriteLinks(ctx context.Context, html string, emailID uuid.UUID) (string, error) {
	var outerErr error
	rewritten := hrefRe.ReplaceAllStringFunc(html, func(match string) string {
		if outerErr != nil {
			return match
		}
		sub := hrefRe.FindStringSubmatch(match)
		if len(sub) < 4 {
			return match
		}
		quote, original := sub[1], sub[2]
		lower := strings.ToLower(original)
		// Only http/https destinations are rewritten (§4.5): mailto:,
		// tel:, #fragments, javascript: and relative links all fall out
		// of the scheme check.
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return match
		}
		if strings.HasPrefix(original, r.baseURL) || strings.Contains(lower, "unsubscribe") {
			return match
		}

		code, err := r.createLink(ctx, emailID, original)
		if err != nil {
			outerErr = err
			return match
		}
		return fmt.Sprintf("href=%s%s/c/%s%s", quote, r.baseURL, code, quote)
	})
	if outerErr != nil {
		return html, outerErr
	}
	return rewritten, nil
}

func (r *Rewriter) createLink(ctx context.Context, emailID uuid.UUID, originalURL string) (string, error) {
	for attempt := 0; attempt < maxCollisionRetries; attempt++ {
		code, err := generateShortCode()
		if err != nil {
			return "", err
		}
		link := &models.TrackingLink{
			ID:          uuid.New(),
			EmailID:     emailID,
			ShortCode:   code,
			OriginalURL: originalURL,
			CreatedAt:   time.Now(),
		}
		err = r.linkRepo.Create(ctx, link)
		if err == nil {
			return code, nil
		}
		if err != repository.ErrCodeTaken {
			return "", err
		}
	}
	return "", fmt.Errorf("tracking: exhausted %d short-code collision retries", maxCollisionRetries)
}

var bodyCloseRe = regexp.MustCompile(`(?i)(</body>)`)

// InjectPixel inserts the open-tracking pixel before </body>, appending it
// to the end of the document if no closing body tag is found.
func (r *Rewriter) InjectPixel(html string, emailID uuid.UUID) string {
	openID := openTrackingID(emailID)
	pixel := fmt.Sprintf(`<img src="%s/t/%s/open.gif" width="1" height="1" alt="" style="display:none;width:1px;height:1px;border:0;" />`, r.baseURL, openID)
	if bodyCloseRe.MatchString(html) {
		return bodyCloseRe.ReplaceAllString(html, pixel+"$1")
	}
	return html + pixel
}

// openTrackingID is the base64url of the 16-byte email id (§4.5).
func openTrackingID(emailID uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(emailID[:])
}

// DecodeOpenTrackingID parses an open.gif path segment back to an email id.
func DecodeOpenTrackingID(s string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.FromBytes(raw)
}

// Resolve loads a tracking link by short code, the synchronous half of the
// click redirect: the 302 needs the destination immediately, while the
// click recording itself rides the tracking lane.
func (r *Rewriter) Resolve(ctx context.Context, code string) (*models.TrackingLink, error) {
	return r.linkRepo.GetByCode(ctx, code)
}

// RecordClick loads the link by code, bumps its click counter, and appends
// a click event carrying the destination URL and requester details (§4.5).
func (r *Rewriter) RecordClick(ctx context.Context, code, userAgent, ip string) (*models.TrackingLink, error) {
	link, err := r.linkRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := r.linkRepo.IncrementClick(ctx, link.ID); err != nil {
		return link, err
	}
	device := ParseDeviceInfo(userAgent)
	err = r.eventRepo.Append(ctx, &models.EmailEvent{
		ID:        uuid.New(),
		EmailID:   link.EmailID,
		EventType: models.EventClicked,
		Data: map[string]any{
			"url":       link.OriginalURL,
			"userAgent": userAgent,
			"ip":        ip,
			"device":    device,
		},
		CreatedAt: time.Now(),
	})
	return link, err
}

// RecordOpen appends an open event for the given email id.
func (r *Rewriter) RecordOpen(ctx context.Context, emailID uuid.UUID, userAgent, ip string) error {
	device := ParseDeviceInfo(userAgent)
	return r.eventRepo.Append(ctx, &models.EmailEvent{
		ID:        uuid.New(),
		EmailID:   emailID,
		EventType: models.EventOpened,
		Data: map[string]any{
			"userAgent": userAgent,
			"ip":        ip,
			"device":    device,
		},
		CreatedAt: time.Now(),
	})
}

// ParseDeviceInfo derives coarse device/OS/browser info from a User-Agent
// header, best-effort (no external UA database).
func ParseDeviceInfo(userAgent string) *models.DeviceInfo {
	if userAgent == "" {
		return nil
	}
	ua := strings.ToLower(userAgent)
	d := &models.DeviceInfo{}

	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		d.Type = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		d.Type = "mobile"
	default:
		d.Type = "desktop"
	}

	switch {
	case strings.Contains(ua, "windows"):
		d.OS = "Windows"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os"):
		d.OS = "macOS"
	case strings.Contains(ua, "android"):
		d.OS = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		d.OS = "iOS"
	case strings.Contains(ua, "linux"):
		d.OS = "Linux"
	}

	switch {
	case strings.Contains(ua, "edg"):
		d.Browser = "Edge"
	case strings.Contains(ua, "chrome"):
		d.Browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		d.Browser = "Firefox"
	case strings.Contains(ua, "safari"):
		d.Browser = "Safari"
	}

	if strings.Contains(ua, "bot") || strings.Contains(ua, "crawler") || strings.Contains(ua, "spider") {
		d.IsBot = true
	}
	return d
}
