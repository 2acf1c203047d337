package handler

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// addSuppression handles POST /v1/suppression.
func (h *Handler) addSuppression(w http.ResponseWriter, r *http.Request) {
	var req models.AddSuppressionRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}
	s := &models.Suppression{
		ID: uuid.New(), Address: req.Address, Reason: req.Reason, CreatedAt: time.Now(),
	}
	if !req.Global {
		appID := middleware.GetAppID(r.Context())
		s.AppID = &appID
	}
	if req.Reason == models.ReasonSoftBounce {
		expires := s.CreatedAt.Add(models.SoftBounceExpiry)
		s.ExpiresAt = &expires
	}
	if err := h.suppressions.Upsert(r.Context(), s); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, s)
}

// addBulkSuppression handles POST /v1/suppression/bulk.
func (h *Handler) addBulkSuppression(w http.ResponseWriter, r *http.Request) {
	var req models.BulkSuppressionRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	var appIDPtr *uuid.UUID
	if !req.Global {
		appID := middleware.GetAppID(r.Context())
		appIDPtr = &appID
	}

	result := models.BulkSuppressionResult{}
	for _, addr := range req.Addresses {
		now := time.Now()
		s := &models.Suppression{ID: uuid.New(), AppID: appIDPtr, Address: addr, Reason: req.Reason, CreatedAt: now}
		if req.Reason == models.ReasonSoftBounce {
			expires := now.Add(models.SoftBounceExpiry)
			s.ExpiresAt = &expires
		}
		if err := h.suppressions.Upsert(r.Context(), s); err != nil {
			h.writeErr(w, err)
			return
		}
		result.Added++
	}
	h.writeData(w, http.StatusOK, result)
}

// listSuppressions handles GET /v1/suppression.
func (h *Handler) listSuppressions(w http.ResponseWriter, r *http.Request) {
	appID := middleware.GetAppID(r.Context())
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	entries, total, err := h.suppressions.List(r.Context(), appID, limit, offset)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	resp := struct {
		Data       []models.Suppression `json:"data"`
		Pagination models.Pagination    `json:"pagination"`
	}{
		Data: entries,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset, HasMore: offset+len(entries) < total},
	}
	h.writeData(w, http.StatusOK, resp)
}

// checkSuppression handles GET /v1/suppression/{email}.
func (h *Handler) checkSuppression(w http.ResponseWriter, r *http.Request) {
	addr, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || addr == "" {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid email parameter"))
		return
	}
	res, err := h.suppressions.Check(r.Context(), middleware.GetAppID(r.Context()), addr)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, res)
}

// removeSuppression handles DELETE /v1/suppression/{email}.
func (h *Handler) removeSuppression(w http.ResponseWriter, r *http.Request) {
	addr, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || addr == "" {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid email parameter"))
		return
	}
	appID := middleware.GetAppID(r.Context())
	if err := h.suppressions.Remove(r.Context(), &appID, addr); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeNoContent(w)
}

// exportSuppressions handles GET /v1/suppression/export?format=csv.
func (h *Handler) exportSuppressions(w http.ResponseWriter, r *http.Request) {
	csvBody, err := h.suppressions.ExportCSV(r.Context(), middleware.GetAppID(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="suppressions.csv"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, csvBody)
}

// importRequest is the body of POST /v1/suppression/import: the spec names
// it a raw CSV string rather than a file upload.
type importRequest struct {
	CSV string `json:"csv" validate:"required"`
}

// importSuppressions handles POST /v1/suppression/import.
func (h *Handler) importSuppressions(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	appID := middleware.GetAppID(r.Context())
	reader := csv.NewReader(bufio.NewReader(bytes.NewReader([]byte(req.CSV))))
	reader.FieldsPerRecord = -1

	result := models.SuppressionImportResult{}
	lineNo := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if lineNo == 1 && len(record) > 0 && record[0] == "email_address" {
			continue
		}
		if err != nil {
			result.Errors = append(result.Errors, models.SuppressionImportError{Line: lineNo, Message: err.Error()})
			continue
		}
		if len(record) < 2 || record[0] == "" {
			result.Errors = append(result.Errors, models.SuppressionImportError{Line: lineNo, Message: "missing email_address or reason"})
			continue
		}

		now := time.Now()
		s := &models.Suppression{
			ID: uuid.New(), AppID: &appID, Address: record[0],
			Reason: models.SuppressionReason(record[1]), CreatedAt: now,
		}
		if len(record) > 2 && record[2] != "" {
			if t, err := time.Parse(time.RFC3339, record[2]); err == nil {
				s.ExpiresAt = &t
			}
		}
		if err := h.suppressions.Upsert(r.Context(), s); err != nil {
			result.Errors = append(result.Errors, models.SuppressionImportError{Line: lineNo, Message: err.Error()})
			continue
		}
		result.Imported++
	}
	h.writeData(w, http.StatusOK, result)
}
