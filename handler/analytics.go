package handler

import (
	"net/http"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
)

// analyticsRange parses the ?from/?to query window, defaulting to the
// trailing 7 days (§6 analytics reads).
func analyticsRange(r *http.Request) (from, to time.Time) {
	to = time.Now()
	from = to.Add(-7 * 24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	return from, to
}

// analyticsOverview handles GET /v1/analytics/overview.
func (h *Handler) analyticsOverview(w http.ResponseWriter, r *http.Request) {
	from, to := analyticsRange(r)
	res, err := h.analytics.Overview(r.Context(), middleware.GetAppID(r.Context()), from, to)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, res)
}

// analyticsDelivery handles GET /v1/analytics/delivery: the day-by-day
// bucket series behind the overview totals, for charting.
func (h *Handler) analyticsDelivery(w http.ResponseWriter, r *http.Request) {
	from, to := analyticsRange(r)
	res, err := h.analytics.Series(r.Context(), middleware.GetAppID(r.Context()), from, to)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, res)
}

// analyticsEngagement handles GET /v1/analytics/engagement.
func (h *Handler) analyticsEngagement(w http.ResponseWriter, r *http.Request) {
	from, to := analyticsRange(r)
	res, err := h.analytics.Engagement(r.Context(), middleware.GetAppID(r.Context()), from, to)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, res)
}

// analyticsBounces handles GET /v1/analytics/bounces.
func (h *Handler) analyticsBounces(w http.ResponseWriter, r *http.Request) {
	from, to := analyticsRange(r)
	res, err := h.analytics.Bounces(r.Context(), middleware.GetAppID(r.Context()), from, to)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, res)
}

// analyticsReputation handles GET /v1/analytics/reputation.
func (h *Handler) analyticsReputation(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reputations.Get(r.Context(), middleware.GetAppID(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, rep)
}
