package handler

import (
	"net/http"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
)

// smtpConfigRequest is the body of POST /v1/smtp-configs.
type smtpConfigRequest struct {
	Name       string `json:"name" validate:"required"`
	Host       string `json:"host" validate:"required"`
	Port       int    `json:"port" validate:"required"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Encryption string `json:"encryption" validate:"required,oneof=tls starttls none"`
	PoolSize   int    `json:"poolSize,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
}

// createSMTPConfig handles POST /v1/smtp-configs.
func (h *Handler) createSMTPConfig(w http.ResponseWriter, r *http.Request) {
	var req smtpConfigRequest
	if verr := h.decodeAndValidate(r, &req); verr != nil {
		h.writeErr(w, verr)
		return
	}

	poolSize := req.PoolSize
	if poolSize <= 0 {
		poolSize = 5
	}
	cfg := &models.SMTPConfig{
		ID: uuid.New(), AppID: middleware.GetAppID(r.Context()), Name: req.Name, Host: req.Host, Port: req.Port,
		Username: req.Username, Password: req.Password, Encryption: models.EncryptionMode(req.Encryption),
		PoolSize: poolSize, TimeoutMs: req.TimeoutMs, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := h.smtpConfigs.Create(r.Context(), cfg); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, cfg)
}

// listSMTPConfigs handles GET /v1/smtp-configs.
func (h *Handler) listSMTPConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.smtpConfigs.List(r.Context(), middleware.GetAppID(r.Context()))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, cfgs)
}

// getSMTPConfig handles GET /v1/smtp-configs/{id}.
func (h *Handler) getSMTPConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.resolveOwnedSMTPConfig(w, r)
	if !ok {
		return
	}
	h.writeData(w, http.StatusOK, cfg)
}

// resolveOwnedSMTPConfig loads a config by id and checks it belongs to the
// caller's app: SMTPConfigRepository.GetByID is not itself app-scoped, so
// the cross-tenant check happens here (§7: INVALID_SMTP_CONFIG at the
// service/handler layer).
func (h *Handler) resolveOwnedSMTPConfig(w http.ResponseWriter, r *http.Request) (*models.SMTPConfig, bool) {
	id, ok := parseUUIDParam(r, "id")
	if !ok {
		h.writeErr(w, apperr.New(apperr.CodeValidation, "invalid smtp config id"))
		return nil, false
	}
	cfg, err := h.smtpConfigs.GetByID(r.Context(), id)
	if err != nil {
		h.writeErr(w, mapRepoErr(err, "smtp config"))
		return nil, false
	}
	if cfg.AppID != middleware.GetAppID(r.Context()) {
		h.writeErr(w, apperr.New(apperr.CodeInvalidSMTPConfig, "smtp config belongs to a different app"))
		return nil, false
	}
	return cfg, true
}

// testSMTPConfig handles POST /v1/smtp-configs/{id}/test.
func (h *Handler) testSMTPConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.resolveOwnedSMTPConfig(w, r)
	if !ok {
		return
	}
	result := h.smtpPool.Test(r.Context(), cfg)
	h.writeData(w, http.StatusOK, result)
}

// activateSMTPConfig handles POST /v1/smtp-configs/{id}/activate.
func (h *Handler) activateSMTPConfig(w http.ResponseWriter, r *http.Request) {
	h.setSMTPActive(w, r, true)
}

// deactivateSMTPConfig handles POST /v1/smtp-configs/{id}/deactivate.
func (h *Handler) deactivateSMTPConfig(w http.ResponseWriter, r *http.Request) {
	h.setSMTPActive(w, r, false)
}

func (h *Handler) setSMTPActive(w http.ResponseWriter, r *http.Request, active bool) {
	cfg, ok := h.resolveOwnedSMTPConfig(w, r)
	if !ok {
		return
	}
	if err := h.smtpConfigs.SetActive(r.Context(), cfg.ID, active); err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]bool{"active": active})
}
