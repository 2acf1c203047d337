package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/tracking"
	"github.com/go-chi/chi/v5"
)

// trackOpen handles GET /t/{id}/open.gif: a 1x1 pixel is served
// unconditionally (§6: "always returns pixel"), the open itself is recorded
// off-path via the tracking lane (§4.5) and never delays or fails the
// response.
func (h *Handler) trackOpen(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	if emailID, err := tracking.DecodeOpenTrackingID(idStr); err == nil {
		h.enqueueTracking(r, models.TrackingJob{
			Kind:      models.TrackingKindOpen,
			EmailID:   emailID,
			UserAgent: r.Header.Get("User-Agent"),
			IP:        clientIP(r),
		})
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	w.Write(tracking.TransparentGIF())
}

// trackClick handles GET /c/{code}: resolves the destination for the 302
// synchronously, records the click via the tracking lane, 404 if the short
// code is unknown.
func (h *Handler) trackClick(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	link, err := h.tracking.Resolve(r.Context(), code)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	h.enqueueTracking(r, models.TrackingJob{
		Kind:      models.TrackingKindClick,
		Code:      code,
		UserAgent: r.Header.Get("User-Agent"),
		IP:        clientIP(r),
	})

	http.Redirect(w, r, link.OriginalURL, http.StatusFound)
}

// enqueueTracking publishes a tracking job, best-effort: a broker hiccup
// loses one engagement data point, never the redirect or pixel.
func (h *Handler) enqueueTracking(r *http.Request, job models.TrackingJob) {
	if h.broker == nil {
		return
	}
	body, err := json.Marshal(job)
	if err == nil {
		err = h.broker.Enqueue(r.Context(), broker.LaneTracking, 5, 0, body)
	}
	if err != nil {
		h.logger.Debug().Err(err).Str("kind", job.Kind).Msg("failed to enqueue tracking job")
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
