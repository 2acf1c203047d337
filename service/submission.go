// Package service implements the Submission Service (C6): the
// validate → resolve → rate-limit → suppression-check → persist → enqueue
// pipeline of §4.1, plus cancel/retry. Grounded on the reference
// SenderService's Send/SendBatch, restructured around this system's
// explicit queue/broker/rate-limiter/suppression components instead of the
// reference's single Redis list and inline SMTP send (delivery itself
// belongs to the worker, C7, not the submission path).
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/apperr"
	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/ratelimit"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/templating"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubmissionService implements submit/cancel/retry (§4.1).
type SubmissionService struct {
	emails       *repository.EmailRepository
	events       *repository.EventRepository
	queues       *repository.QueueRepository
	apps         *repository.AppRepository
	suppressions *repository.SuppressionRepository
	templates    *repository.TemplateRepository
	broker       broker.Broker
	limiter      *ratelimit.Limiter
	logger       zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(
	emails *repository.EmailRepository,
	events *repository.EventRepository,
	queues *repository.QueueRepository,
	apps *repository.AppRepository,
	suppressions *repository.SuppressionRepository,
	templates *repository.TemplateRepository,
	b broker.Broker,
	limiter *ratelimit.Limiter,
	logger zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		emails: emails, events: events, queues: queues, apps: apps,
		suppressions: suppressions, templates: templates, broker: b, limiter: limiter, logger: logger,
	}
}

// Submit implements §4.1's `submit` operation end to end.
func (s *SubmissionService) Submit(ctx context.Context, appID uuid.UUID, cred *models.APICredential, req *models.SubmitEmailRequest) (*models.SubmitResult, error) {
	if fields := validateSubmission(req); len(fields) > 0 {
		return nil, apperr.Validation(fields...)
	}

	queue, err := s.queues.GetByAppAndName(ctx, appID, req.Queue)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.CodeQueueNotFound, "queue not found: "+req.Queue)
		}
		return nil, err
	}
	if queue.Paused {
		return nil, apperr.New(apperr.CodeQueuePaused, "queue is paused: "+req.Queue)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.emails.GetByIdempotencyKey(ctx, appID, req.IdempotencyKey)
		if err != nil && err != repository.ErrNotFound {
			return nil, err
		}
		if err == nil {
			return nil, apperr.WithDetails(apperr.CodeIdempotencyConflict, "idempotency key already used", map[string]any{"id": existing.ID})
		}
	}

	if cred != nil {
		app, err := s.apps.GetByID(ctx, appID)
		if err != nil {
			return nil, err
		}
		// The apiKey tier is charged once per request by the RateLimit
		// middleware, so it is skipped here.
		res, err := s.limiter.Check(ctx, cred.ID.String(), nil, appID.String(), app.DailyLimit, queue.ID.String(), queue.RateLimit)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, apperr.New(apperr.CodeRateLimitExceeded, "rate limit exceeded, tier: "+res.BlockedBy)
		}
	}

	subject, html, text, err := s.renderBody(ctx, appID, req)
	if err != nil {
		return nil, err
	}

	recipients := dedupeRecipients(req.To, req.CC, req.BCC)
	checks, err := s.suppressions.CheckMany(ctx, appID, recipients)
	if err != nil {
		return nil, err
	}
	for _, check := range checks {
		if check.IsSuppressed {
			return nil, apperr.WithDetails(apperr.CodeSuppressedEmail, "recipient is suppressed: "+check.Address,
				map[string]any{"address": check.Address, "reason": check.Reason})
		}
	}

	now := time.Now()
	email := &models.Email{
		ID:              uuid.New(),
		AppID:           appID,
		QueueID:         queue.ID,
		IdempotencyKey:  req.IdempotencyKey,
		From:            req.From,
		To:              req.To,
		CC:              req.CC,
		BCC:             req.BCC,
		ReplyTo:         req.ReplyTo,
		Subject:         subject,
		HTML:            html,
		Text:            text,
		Headers:         req.Headers,
		Personalization: req.Personalization,
		Metadata:        req.Metadata,
		Status:          models.StatusQueued,
		ScheduledAt:     req.ScheduledAt,
		CreatedAt:       now,
	}

	event := &models.EmailEvent{ID: uuid.New(), EmailID: email.ID, EventType: models.EventQueued, CreatedAt: now}
	if err := s.emails.Create(ctx, email, event); err != nil {
		return nil, fmt.Errorf("persist email: %w", err)
	}

	s.enqueue(ctx, email, queue)

	return &models.SubmitResult{ID: email.ID, Status: email.Status, QueuedAt: now}, nil
}

// renderBody resolves the outgoing subject/html/text, either from an
// attached template or the request body directly.
func (s *SubmissionService) renderBody(ctx context.Context, appID uuid.UUID, req *models.SubmitEmailRequest) (subject, html, text string, err error) {
	if req.TemplateID == nil {
		return req.Subject, req.HTML, req.Text, nil
	}
	tmpl, err := s.templates.GetByID(ctx, appID, *req.TemplateID)
	if err != nil {
		if err == repository.ErrNotFound {
			return "", "", "", apperr.NotFound("template")
		}
		return "", "", "", err
	}
	rendered, err := templating.Render(tmpl, req.TemplateData)
	if err != nil {
		return "", "", "", apperr.WithDetails(apperr.CodeValidation, "template rendering failed", err.Error())
	}
	return rendered.Subject, rendered.HTML, rendered.Text, nil
}

// enqueue publishes the broker job after the email/event transaction has
// committed; this is best-effort by design (§4.1: "the broker enqueue is
// best-effort after commit"), with the startup/periodic reconciliation
// sweep covering the crash window between commit and publish.
func (s *SubmissionService) enqueue(ctx context.Context, email *models.Email, queue *models.Queue) {
	if s.broker == nil {
		return
	}
	body, err := json.Marshal(models.EmailJob{EmailID: email.ID, AppID: email.AppID, QueueID: email.QueueID})
	if err != nil {
		s.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to marshal email job")
		return
	}
	delay := time.Duration(0)
	if email.ScheduledAt != nil {
		if d := time.Until(*email.ScheduledAt); d > 0 {
			delay = d
		}
	}
	if err := s.broker.Enqueue(ctx, broker.LaneEmail, queue.Priority, delay, body); err != nil {
		s.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to enqueue email job")
	}
}

// Cancel implements §4.1's `cancel` operation: only a `queued` email may be
// cancelled.
func (s *SubmissionService) Cancel(ctx context.Context, appID, emailID uuid.UUID) error {
	email, err := s.emails.GetByID(ctx, appID, emailID)
	if err != nil {
		return err
	}
	if email.Status != models.StatusQueued {
		return apperr.New(apperr.CodeValidation, "only a queued email may be cancelled")
	}

	ok, err := s.emails.CompareAndSwapStatus(ctx, emailID, []models.EmailStatus{models.StatusQueued}, models.StatusCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.CodeValidation, "only a queued email may be cancelled")
	}
	return s.events.Append(ctx, &models.EmailEvent{ID: uuid.New(), EmailID: emailID, EventType: models.EventCancelled, CreatedAt: time.Now()})
}

// Retry implements §4.1's `retry` operation: only a `failed` email may be
// resubmitted, with default priority 5 regardless of the queue's own
// priority (the spec's explicit exception to the normal priority source).
func (s *SubmissionService) Retry(ctx context.Context, appID, emailID uuid.UUID) error {
	email, err := s.emails.GetByID(ctx, appID, emailID)
	if err != nil {
		return err
	}
	if email.Status != models.StatusFailed {
		return apperr.New(apperr.CodeValidation, "only a failed email may be retried")
	}

	previousAttempts := email.RetryCount
	ok, err := s.emails.CompareAndSwapStatus(ctx, emailID, []models.EmailStatus{models.StatusFailed}, models.StatusQueued,
		map[string]any{"lastError": ""})
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.CodeValidation, "only a failed email may be retried")
	}

	if err := s.events.Append(ctx, &models.EmailEvent{
		ID: uuid.New(), EmailID: emailID, EventType: models.EventQueued,
		Data: map[string]any{"retry": true, "previousAttempts": previousAttempts}, CreatedAt: time.Now(),
	}); err != nil {
		s.logger.Error().Err(err).Str("emailId", emailID.String()).Msg("failed to append retry event")
	}

	if s.broker != nil {
		body, err := json.Marshal(models.EmailJob{EmailID: emailID, AppID: appID, QueueID: email.QueueID})
		if err != nil {
			return err
		}
		const defaultRetryPriority = 5
		return s.broker.Enqueue(ctx, broker.LaneEmail, defaultRetryPriority, 0, body)
	}
	return nil
}

// SubmitRendered implements cron.Submitter: the scheduled-job path already
// has a rendered subject/html/text in hand, so it skips template
// resolution and goes straight through queue/suppression/persist/enqueue.
func (s *SubmissionService) SubmitRendered(ctx context.Context, appID, queueID uuid.UUID, to []models.Address, subject, html, text string, metadata map[string]any) error {
	queue, err := s.queues.GetByID(ctx, appID, queueID)
	if err != nil {
		return err
	}
	if queue.Paused {
		return apperr.New(apperr.CodeQueuePaused, "queue is paused: "+queue.Name)
	}

	for _, addr := range dedupeRecipients(to, nil, nil) {
		check, err := s.suppressions.Check(ctx, appID, addr)
		if err != nil {
			return err
		}
		if check.IsSuppressed {
			s.logger.Info().Str("address", addr).Msg("skipping suppressed recipient on scheduled send")
			return nil
		}
	}

	now := time.Now()
	email := &models.Email{
		ID: uuid.New(), AppID: appID, QueueID: queue.ID,
		From: models.Address{Email: "scheduler@" + appID.String()}, To: to,
		Subject: subject, HTML: html, Text: text, Metadata: metadata,
		Status: models.StatusQueued, CreatedAt: now,
	}
	event := &models.EmailEvent{ID: uuid.New(), EmailID: email.ID, EventType: models.EventQueued, CreatedAt: now}
	if err := s.emails.Create(ctx, email, event); err != nil {
		return fmt.Errorf("persist scheduled email: %w", err)
	}

	s.enqueue(ctx, email, queue)
	return nil
}

// dedupeRecipients returns the distinct, normalised recipient addresses
// across to/cc/bcc in order of first appearance (§4.1 step 3).
func dedupeRecipients(groups ...[]models.Address) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, a := range group {
			addr := models.NormalizeAddress(a.Email)
			if addr != "" && !seen[addr] {
				seen[addr] = true
				out = append(out, addr)
			}
		}
	}
	return out
}
