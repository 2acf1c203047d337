// Package handler implements the REST surface of §6: one Handler composes
// every service/repository the API needs and exposes them over a chi
// router under the /v1 prefix. Grounded on the reference transactional-api
// handler package's Handler struct, Router tree, and jsonResponse/
// errorResponse/parseUUID/parseInt helper shapes, adapted to this system's
// apperr taxonomy and {success,data}/{success,error} envelopes.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/analytics"
	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/middleware"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/service"
	"github.com/CosminFerecatu/mail-queue-sub000/smtppool"
	"github.com/CosminFerecatu/mail-queue-sub000/tracking"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler wires every domain component the REST surface exposes.
type Handler struct {
	submission   *service.SubmissionService
	emails       *repository.EmailRepository
	events       *repository.EventRepository
	queues       *repository.QueueRepository
	credentials  *repository.CredentialRepository
	smtpConfigs  *repository.SMTPConfigRepository
	suppressions  *repository.SuppressionRepository
	reputations   *repository.ReputationRepository
	templates     *repository.TemplateRepository
	scheduledJobs *repository.ScheduledJobRepository
	analytics     *analytics.Aggregator
	tracking      *tracking.Rewriter
	smtpPool      *smtppool.Pool
	broker        broker.Broker

	auth           *middleware.Authenticator
	limiter        func(http.Handler) http.Handler
	idempotency    func(http.Handler) http.Handler
	validator      *validator.Validate
	logger         zerolog.Logger
	allowedOrigins []string
}

// Config carries every collaborator NewHandler needs.
type Config struct {
	Submission   *service.SubmissionService
	Emails       *repository.EmailRepository
	Events       *repository.EventRepository
	Queues       *repository.QueueRepository
	Credentials  *repository.CredentialRepository
	SMTPConfigs  *repository.SMTPConfigRepository
	Suppressions  *repository.SuppressionRepository
	Reputations   *repository.ReputationRepository
	Templates     *repository.TemplateRepository
	ScheduledJobs *repository.ScheduledJobRepository
	Analytics     *analytics.Aggregator
	Tracking      *tracking.Rewriter
	SMTPPool      *smtppool.Pool
	Broker        broker.Broker
	Auth          *middleware.Authenticator
	RateLimit     func(http.Handler) http.Handler
	Idempotency   func(http.Handler) http.Handler
	Logger        zerolog.Logger

	AllowedOrigins []string
}

// New constructs a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		submission: cfg.Submission, emails: cfg.Emails, events: cfg.Events, queues: cfg.Queues,
		credentials: cfg.Credentials, smtpConfigs: cfg.SMTPConfigs, suppressions: cfg.Suppressions,
		reputations: cfg.Reputations, templates: cfg.Templates, scheduledJobs: cfg.ScheduledJobs,
		analytics: cfg.Analytics, tracking: cfg.Tracking, smtpPool: cfg.SMTPPool, broker: cfg.Broker,
		auth: cfg.Auth, limiter: cfg.RateLimit, idempotency: cfg.Idempotency,
		validator: validator.New(), logger: cfg.Logger,
		allowedOrigins: cfg.AllowedOrigins,
	}
}

// Router builds the full route tree under /v1, plus the unauthenticated
// tracking endpoints that live outside it.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(middleware.Recoverer(h.logger))
	r.Use(chimw.Timeout(60 * time.Second))

	origins := h.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/t/{id}/open.gif", h.trackOpen)
	r.Get("/c/{code}", h.trackClick)

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.auth.Authenticate)
		r.Use(h.limiter)
		if h.idempotency != nil {
			r.Use(h.idempotency)
		}

		r.Route("/emails", func(r chi.Router) {
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Post("/", h.submitEmail)
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Post("/batch", h.submitBatch)
			r.With(middleware.RequireScope(models.ScopeEmailRead)).Get("/", h.listEmails)
			r.With(middleware.RequireScope(models.ScopeEmailRead)).Get("/{id}", h.getEmail)
			r.With(middleware.RequireScope(models.ScopeEmailRead)).Get("/{id}/events", h.getEmailEvents)
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Delete("/{id}", h.cancelEmail)
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Post("/{id}/retry", h.retryEmail)
		})

		r.Route("/queues", func(r chi.Router) {
			r.Use(middleware.RequireScope(models.ScopeQueueManage))
			r.Post("/", h.createQueue)
			r.Get("/", h.listQueues)
			r.Get("/{id}", h.getQueue)
			r.Put("/{id}", h.updateQueue)
			r.Delete("/{id}", h.deleteQueue)
			r.Post("/{id}/pause", h.pauseQueue)
			r.Post("/{id}/resume", h.resumeQueue)
			r.Get("/{id}/stats", h.queueStats)
		})

		r.Route("/apps/{appId}/api-keys", func(r chi.Router) {
			r.Use(middleware.RequireScope(models.ScopeAdmin))
			r.Post("/", h.createAPIKey)
			r.Delete("/{id}", h.deleteAPIKey)
			r.Post("/{id}/rotate", h.rotateAPIKey)
			r.Post("/{id}/revoke", h.revokeAPIKey)
		})

		r.Route("/suppression", func(r chi.Router) {
			r.With(middleware.RequireScope(models.ScopeSuppressionManage)).Post("/", h.addSuppression)
			r.With(middleware.RequireScope(models.ScopeSuppressionManage)).Post("/bulk", h.addBulkSuppression)
			r.With(middleware.RequireScope(models.ScopeSuppressionManage, models.ScopeEmailRead)).Get("/", h.listSuppressions)
			r.With(middleware.RequireScope(models.ScopeSuppressionManage, models.ScopeEmailRead)).Get("/export", h.exportSuppressions)
			r.With(middleware.RequireScope(models.ScopeSuppressionManage)).Post("/import", h.importSuppressions)
			r.With(middleware.RequireScope(models.ScopeSuppressionManage, models.ScopeEmailRead)).Get("/{email}", h.checkSuppression)
			r.With(middleware.RequireScope(models.ScopeSuppressionManage)).Delete("/{email}", h.removeSuppression)
		})

		r.Route("/smtp-configs", func(r chi.Router) {
			r.Use(middleware.RequireScope(models.ScopeSMTPManage))
			r.Post("/", h.createSMTPConfig)
			r.Get("/", h.listSMTPConfigs)
			r.Get("/{id}", h.getSMTPConfig)
			r.Post("/{id}/test", h.testSMTPConfig)
			r.Post("/{id}/activate", h.activateSMTPConfig)
			r.Post("/{id}/deactivate", h.deactivateSMTPConfig)
		})

		r.Route("/templates", func(r chi.Router) {
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Post("/", h.createTemplate)
			r.With(middleware.RequireScope(models.ScopeEmailRead, models.ScopeEmailSend)).Get("/", h.listTemplates)
			r.With(middleware.RequireScope(models.ScopeEmailRead, models.ScopeEmailSend)).Get("/{id}", h.getTemplate)
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Put("/{id}", h.updateTemplate)
			r.With(middleware.RequireScope(models.ScopeEmailSend)).Delete("/{id}", h.deleteTemplate)
		})

		r.Route("/scheduled-jobs", func(r chi.Router) {
			r.Use(middleware.RequireScope(models.ScopeQueueManage))
			r.Post("/", h.createScheduledJob)
			r.Get("/", h.listScheduledJobs)
			r.Get("/{id}", h.getScheduledJob)
			r.Put("/{id}", h.updateScheduledJob)
			r.Delete("/{id}", h.deleteScheduledJob)
			r.Post("/{id}/activate", h.setScheduledJobActive(true))
			r.Post("/{id}/deactivate", h.setScheduledJobActive(false))
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Use(middleware.RequireScope(models.ScopeAnalyticsRead))
			r.Get("/overview", h.analyticsOverview)
			r.Get("/delivery", h.analyticsDelivery)
			r.Get("/engagement", h.analyticsEngagement)
			r.Get("/bounces", h.analyticsBounces)
			r.Get("/reputation", h.analyticsReputation)
		})
	})

	return r
}

// --- response helpers ---

func (h *Handler) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		json.NewEncoder(w).Encode(models.APIResponse{Success: true})
		return
	}
	json.NewEncoder(w).Encode(models.APIResponse{Success: true, Data: data})
}

func (h *Handler) writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	e, ok := err.(*apperr.Error)
	if !ok {
		h.logger.Error().Err(err).Msg("unclassified handler error")
		e = apperr.New(apperr.CodeInternal, "internal error")
	}
	if e.Code == apperr.CodeInternal {
		h.logger.Error().Str("code", string(e.Code)).Msg(e.Message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	json.NewEncoder(w).Encode(models.APIError{Success: false, Error: &models.ErrorBody{
		Code: string(e.Code), Message: e.Message, Details: e.Details,
	}})
}

// mapRepoErr translates the sentinel repository.ErrNotFound into a named
// 404, leaving every other error to fall through to 500.
func mapRepoErr(err error, entity string) error {
	if err == repository.ErrNotFound {
		return apperr.NotFound(entity)
	}
	return err
}

func (h *Handler) decodeAndValidate(r *http.Request, dst any) *apperr.Error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.CodeValidation, "malformed JSON body")
	}
	if err := h.validator.Struct(dst); err != nil {
		var fields []apperr.FieldError
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, apperr.FieldError{Path: fe.Namespace(), Message: fe.Tag()})
			}
		}
		return apperr.Validation(fields...)
	}
	return nil
}

func parseUUIDParam(r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	return id, err == nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
