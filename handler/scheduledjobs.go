package handler

import (
	"net/http"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/cron"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
)

// validateScheduledJob checks the parts of a scheduled-job write the
// validator tags can't: the cron expression must parse (§4.12: unparseable
// expressions are "rejected at write time"), the timezone must be a known
// IANA name, and the referenced queue and template must belong to the app.
func (h *Handler) validateScheduledJob(r *http.Request, req *models.CreateScheduledJobRequest) *apperr.Error {
	if err := cron.ValidateExpr(req.CronExpr); err != nil {
		return apperr.Validation(apperr.FieldError{Path: "cronExpr", Message: "unparseable cron expression"})
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return apperr.Validation(apperr.FieldError{Path: "timezone", Message: "unknown timezone"})
		}
	}

	appID := middleware.GetAppID(r.Context())
	if _, err := h.queues.GetByID(r.Context(), appID, req.QueueID); err != nil {
		return apperr.New(apperr.CodeQueueNotFound, "queue not found")
	}
	if _, err := h.templates.GetByID(r.Context(), appID, req.TemplateID); err != nil {
		return apperr.Validation(apperr.FieldError{Path: "templateId", Message: "template not found"})
	}
	return nil
}

func scheduledJobFromRequest(appID uuid.UUID, req *models.CreateScheduledJobRequest) *models.ScheduledJob {
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.ScheduledJob{
		AppID:        appID,
		QueueID:      req.QueueID,
		Name:         req.Name,
		CronExpr:     req.CronExpr,
		Timezone:     timezone,
		TemplateID:   req.TemplateID,
		TemplateData: req.TemplateData,
		To:           req.To,
		Active:       active,
	}
}

// createScheduledJob handles POST /v1/scheduled-jobs.
func (h *Handler) createScheduledJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateScheduledJobRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}
	if verr := h.validateScheduledJob(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	job := scheduledJobFromRequest(middleware.GetAppID(r.Context()), &req)
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	if next, err := cron.NextRun(job.CronExpr, job.Timezone, time.Now()); err == nil {
		job.NextRunAt = &next
	}

	if err := h.scheduledJobs.Create(r.Context(), job); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, job)
}

// listScheduledJobs handles GET /v1/scheduled-jobs.
func (h *Handler) listScheduledJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.scheduledJobs.List(r.Context(), middleware.GetAppID(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.ScheduledJob{}
	}
	h.writeData(w, http.StatusOK, jobs)
}

// getScheduledJob handles GET /v1/scheduled-jobs/{id}.
func (h *Handler) getScheduledJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.NotFound("scheduled job"))
		return
	}
	job, err := h.scheduledJobs.GetByID(r.Context(), middleware.GetAppID(r.Context()), id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "scheduled job"))
		return
	}
	h.writeData(w, http.StatusOK, job)
}

// updateScheduledJob handles PUT /v1/scheduled-jobs/{id}.
func (h *Handler) updateScheduledJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.NotFound("scheduled job"))
		return
	}
	var req models.CreateScheduledJobRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}
	if verr := h.validateScheduledJob(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	job := scheduledJobFromRequest(middleware.GetAppID(r.Context()), &req)
	job.ID = id
	job.UpdatedAt = time.Now()
	if next, err := cron.NextRun(job.CronExpr, job.Timezone, time.Now()); err == nil {
		job.NextRunAt = &next
	}

	if err := h.scheduledJobs.Update(r.Context(), job); err != nil {
		h.writeErr(w, mapRepoErr(err, "scheduled job"))
		return
	}
	h.writeData(w, http.StatusOK, job)
}

// deleteScheduledJob handles DELETE /v1/scheduled-jobs/{id}.
func (h *Handler) deleteScheduledJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.NotFound("scheduled job"))
		return
	}
	if err := h.scheduledJobs.Delete(r.Context(), middleware.GetAppID(r.Context()), id); err != nil {
		h.writeErr(w, mapRepoErr(err, "scheduled job"))
		return
	}
	h.writeNoContent(w)
}

// setScheduledJobActive backs POST /v1/scheduled-jobs/{id}/activate and
// /deactivate.
func (h *Handler) setScheduledJobActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(r, "id")
		if !ok {
			h.writeErr(w, apperr.NotFound("scheduled job"))
			return
		}
		appID := middleware.GetAppID(r.Context())
		if _, err := h.scheduledJobs.GetByID(r.Context(), appID, id); err != nil {
			h.writeErr(w, mapRepoErr(err, "scheduled job"))
			return
		}
		if err := h.scheduledJobs.SetActive(r.Context(), id, active); err != nil {
			h.writeErr(w, err)
			return
		}
		h.writeData(w, http.StatusOK, map[string]bool{"active": active})
	}
}
