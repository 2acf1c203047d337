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

// createTemplate handles POST /v1/templates.
func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTemplateRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}
	if req.HTML == "" && req.Text == "" {
		h.writeErr(w, apperr.Validation(apperr.FieldError{Path: "html", Message: "at least one of html or text is required"}))
		return
	}

	now := time.Now()
	tmpl := &models.Template{
		ID:        uuid.New(),
		AppID:     middleware.GetAppID(r.Context()),
		Name:      req.Name,
		Subject:   req.Subject,
		HTML:      req.HTML,
		Text:      req.Text,
		Variables: req.Variables,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.templates.Create(r.Context(), tmpl); err != nil {
		if err == repository.ErrDuplicateName {
			h.writeErr(w, apperr.Validation(apperr.FieldError{Path: "name", Message: "a template named " + req.Name + " already exists"}))
			return
		}
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, tmpl)
}

// listTemplates handles GET /v1/templates.
func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context(), middleware.GetAppID(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	h.writeData(w, http.StatusOK, templates)
}

// getTemplate handles GET /v1/templates/{id}.
func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.NotFound("template"))
		return
	}
	tmpl, err := h.templates.GetByID(r.Context(), middleware.GetAppID(r.Context()), id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "template"))
		return
	}
	h.writeData(w, http.StatusOK, tmpl)
}

// updateTemplate handles PUT /v1/templates/{id}.
func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.NotFound("template"))
		return
	}
	var req models.CreateTemplateRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}
	if req.HTML == "" && req.Text == "" {
		h.writeErr(w, apperr.Validation(apperr.FieldError{Path: "html", Message: "at least one of html or text is required"}))
		return
	}

	tmpl := &models.Template{
		ID:        id,
		AppID:     middleware.GetAppID(r.Context()),
		Name:      req.Name,
		Subject:   req.Subject,
		HTML:      req.HTML,
		Text:      req.Text,
		Variables: req.Variables,
		UpdatedAt: time.Now(),
	}
	if err := h.templates.Update(r.Context(), tmpl); err != nil {
		h.writeErr(w, mapRepoErr(err, "template"))
		return
	}
	h.writeData(w, http.StatusOK, tmpl)
}

// deleteTemplate handles DELETE /v1/templates/{id}.
func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.NotFound("template"))
		return
	}
	if err := h.templates.Delete(r.Context(), middleware.GetAppID(r.Context()), id); err != nil {
		h.writeErr(w, mapRepoErr(err, "template"))
		return
	}
	h.writeNoContent(w)
}
