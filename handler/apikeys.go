package handler

import (
	"net/http"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
)

// pathAppID parses the {appId} route segment and confirms it matches the
// authenticated credential's own app: a credential may only manage
// sibling credentials within its own tenant (§3: every credential belongs
// to exactly one app).
func (h *Handler) pathAppID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	appID, ok := parseUUIDParam(r, "appId")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid app id"))
		return uuid.UUID{}, false
	}
	if appID != middleware.GetAppID(r.Context()) {
		h.writeErr(w, apperr.New(apperr.CodeForbidden, "credential may not manage another app's keys"))
		return uuid.UUID{}, false
	}
	return appID, true
}

// createAPIKey handles POST /v1/apps/{appId}/api-keys.
func (h *Handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.pathAppID(w, r)
	if !ok {
		return
	}
	var req models.CreateCredentialRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	cred := &models.APICredential{
		ID: uuid.New(), AppID: appID, Name: req.Name, Scopes: req.Scopes,
		RateLimit: req.RateLimit, ExpiresAt: req.ExpiresAt, Active: true, CreatedAt: time.Now(),
	}
	plaintext, err := h.credentials.Create(r.Context(), cred, false)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, models.CreatedCredential{APICredential: *cred, Key: plaintext})
}

// rotateAPIKey handles POST /v1/apps/{appId}/api-keys/{id}/rotate.
func (h *Handler) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.pathAppID(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid credential id"))
		return
	}
	cred, err := h.credentials.GetByID(r.Context(), appID, id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "api key"))
		return
	}
	plaintext, err := h.credentials.Rotate(r.Context(), id, false)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.auth.InvalidateCache(cred.SecretHash)
	h.writeData(w, http.StatusOK, map[string]string{"key": plaintext})
}

// revokeAPIKey handles POST /v1/apps/{appId}/api-keys/{id}/revoke.
func (h *Handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.pathAppID(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid credential id"))
		return
	}
	cred, err := h.credentials.GetByID(r.Context(), appID, id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "api key"))
		return
	}
	if err := h.credentials.Revoke(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	h.auth.InvalidateCache(cred.SecretHash)
	h.writeData(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// deleteAPIKey handles DELETE /v1/apps/{appId}/api-keys/{id}.
func (h *Handler) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.pathAppID(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid credential id"))
		return
	}
	cred, err := h.credentials.GetByID(r.Context(), appID, id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "api key"))
		return
	}
	if err := h.credentials.Delete(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	h.auth.InvalidateCache(cred.SecretHash)
	h.writeNoContent(w)
}
