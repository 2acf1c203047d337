package handler

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
)

// submitEmail handles POST /v1/emails.
func (h *Handler) submitEmail(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitEmailRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	cred := middleware.GetCredential(r.Context())
	result, err := h.submission.Submit(r.Context(), middleware.GetAppID(r.Context()), cred, &req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, result)
}

// submitBatch handles POST /v1/emails/batch.
func (h *Handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchSubmitRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	appID := middleware.GetAppID(r.Context())
	cred := middleware.GetCredential(r.Context())
	results := make([]models.SubmitResult, 0, len(req.Emails))
	for i := range req.Emails {
		item := req.Emails[i]
		res, err := h.submission.Submit(r.Context(), appID, cred, &item)
		if err != nil {
			ae, ok := err.(*apperr.Error)
			if !ok {
				ae = apperr.New(apperr.CodeInternal, "internal error")
			}
			results = append(results, models.SubmitResult{
				Error: &models.ErrorBody{Code: string(ae.Code), Message: ae.Message, Details: ae.Details},
			})
			continue
		}
		results = append(results, *res)
	}
	h.writeData(w, http.StatusCreated, results)
}

// listEmails handles GET /v1/emails, supporting both cursor and offset
// pagination (§6, §9 Open Question 2): a `cursor` query param selects the
// cursor-shaped response, otherwise `limit`/`offset` select the
// pagination-shaped one. Both drive the same underlying ordered query.
func (h *Handler) listEmails(w http.ResponseWriter, r *http.Request) {
	appID := middleware.GetAppID(r.Context())
	q := &models.EmailQuery{AppID: appID, Limit: queryInt(r, "limit", 20)}

	if qid := r.URL.Query().Get("queueId"); qid != "" {
		if id, err := uuid.Parse(qid); err == nil {
			q.QueueID = &id
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := models.EmailStatus(status)
		q.Status = &s
	}

	cursor := r.URL.Query().Get("cursor")
	useCursor := r.URL.Query().Has("cursor")
	if cursor != "" {
		q.Offset = decodeCursor(cursor)
	} else {
		q.Offset = queryInt(r, "offset", 0)
	}

	emails, total, err := h.emails.List(r.Context(), q)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	hasMore := q.Offset+len(emails) < total
	if useCursor {
		resp := struct {
			Data    []models.Email `json:"data"`
			Cursor  string         `json:"cursor,omitempty"`
			HasMore bool           `json:"hasMore"`
		}{Data: emails, HasMore: hasMore}
		if hasMore {
			resp.Cursor = encodeCursor(q.Offset + len(emails))
		}
		h.writeData(w, http.StatusOK, resp)
		return
	}

	resp := struct {
		Data       []models.Email    `json:"data"`
		Pagination models.Pagination `json:"pagination"`
	}{
		Data: emails,
		Pagination: models.Pagination{
			Total: total, Limit: q.Limit, Offset: q.Offset, HasMore: hasMore,
		},
	}
	h.writeData(w, http.StatusOK, resp)
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) int {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

// getEmail handles GET /v1/emails/{id}.
func (h *Handler) getEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid email id"))
		return
	}
	email, err := h.emails.GetByID(r.Context(), middleware.GetAppID(r.Context()), id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "email"))
		return
	}
	h.writeData(w, http.StatusOK, email)
}

// getEmailEvents handles GET /v1/emails/{id}/events.
func (h *Handler) getEmailEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid email id"))
		return
	}
	if _, err := h.emails.GetByID(r.Context(), middleware.GetAppID(r.Context()), id); err != nil {
		h.writeErr(w, mapRepoErr(err, "email"))
		return
	}
	events, err := h.events.ListByEmail(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, events)
}

// cancelEmail handles DELETE /v1/emails/{id}.
func (h *Handler) cancelEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid email id"))
		return
	}
	if err := h.submission.Cancel(r.Context(), middleware.GetAppID(r.Context()), id); err != nil {
		h.writeErr(w, mapRepoErr(err, "email"))
		return
	}
	h.writeNoContent(w)
}

// retryEmail handles POST /v1/emails/{id}/retry.
func (h *Handler) retryEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid email id"))
		return
	}
	if err := h.submission.Retry(r.Context(), middleware.GetAppID(r.Context()), id); err != nil {
		h.writeErr(w, mapRepoErr(err, "email"))
		return
	}
	h.writeData(w, http.StatusOK, map[string]string{"status": string(models.StatusQueued)})
}
