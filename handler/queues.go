package handler

import (
	"net/http"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/google/uuid"
)

// createQueue handles POST /v1/queues.
func (h *Handler) createQueue(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQueueRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	queue := queueFromRequest(middleware.GetAppID(r.Context()), &req)
	queue.ID = uuid.New()
	queue.CreatedAt = time.Now()
	queue.UpdatedAt = queue.CreatedAt

	if err := h.queues.Create(r.Context(), queue); err != nil {
		if err == repository.ErrConflict {
			h.writeErr(w, apperr.New(apperr.CodeDuplicateQueue, "a queue named "+queue.Name+" already exists"))
			return
		}
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, queue)
}

func queueFromRequest(appID uuid.UUID, req *models.CreateQueueRequest) *models.Queue {
	priority := req.Priority
	if priority == 0 {
		priority = 5
	}
	maxRetries := models.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	retryDelay := req.RetryDelay
	if len(retryDelay) == 0 {
		retryDelay = models.DefaultRetryDelay
	}
	q := &models.Queue{
		AppID: appID, Name: req.Name, Priority: priority, RateLimit: req.RateLimit,
		MaxRetries: maxRetries, RetryDelay: retryDelay, TrackingEnabled: req.TrackingEnabled,
	}
	if req.SMTPConfigID != "" {
		if id, err := uuid.Parse(req.SMTPConfigID); err == nil {
			q.SMTPConfigID = &id
		}
	}
	return q
}

// listQueues handles GET /v1/queues.
func (h *Handler) listQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.queues.List(r.Context(), middleware.GetAppID(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, queues)
}

// getQueue handles GET /v1/queues/{id}.
func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid queue id"))
		return
	}
	q, err := h.queues.GetByID(r.Context(), middleware.GetAppID(r.Context()), id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "queue"))
		return
	}
	h.writeData(w, http.StatusOK, q)
}

// updateQueue handles PUT /v1/queues/{id}.
func (h *Handler) updateQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid queue id"))
		return
	}
	appID := middleware.GetAppID(r.Context())

	existing, err := h.queues.GetByID(r.Context(), appID, id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "queue"))
		return
	}

	var req models.CreateQueueRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	updated := queueFromRequest(appID, &req)
	updated.ID = id
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	updated.Paused = existing.Paused

	if err := h.queues.Update(r.Context(), updated); err != nil {
		if err == repository.ErrConflict {
			h.writeErr(w, apperr.New(apperr.CodeDuplicateQueue, "a queue named "+updated.Name+" already exists"))
			return
		}
		h.writeErr(w, mapRepoErr(err, "queue"))
		return
	}
	h.writeData(w, http.StatusOK, updated)
}

// deleteQueue handles DELETE /v1/queues/{id}.
func (h *Handler) deleteQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid queue id"))
		return
	}
	if err := h.queues.Delete(r.Context(), middleware.GetAppID(r.Context()), id); err != nil {
		h.writeErr(w, mapRepoErr(err, "queue"))
		return
	}
	h.writeNoContent(w)
}

// pauseQueue handles POST /v1/queues/{id}/pause.
func (h *Handler) pauseQueue(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// resumeQueue handles POST /v1/queues/{id}/resume.
func (h *Handler) resumeQueue(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid queue id"))
		return
	}
	appID := middleware.GetAppID(r.Context())
	if _, err := h.queues.GetByID(r.Context(), appID, id); err != nil {
		h.writeErr(w, mapRepoErr(err, "queue"))
		return
	}
	if err := h.queues.SetPaused(r.Context(), id, paused); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]bool{"paused": paused})
}

// queueStats handles GET /v1/queues/{id}/stats.
func (h *Handler) queueStats(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid queue id"))
		return
	}
	appID := middleware.GetAppID(r.Context())
	if _, err := h.queues.GetByID(r.Context(), appID, id); err != nil {
		h.writeErr(w, mapRepoErr(err, "queue"))
		return
	}
	counts, err := h.queues.Stats(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, models.QueueStats{QueueID: id, Counts: counts})
}
