package bounceproc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/webhook"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryController implements C8: decide whether a send failure ends the
// email's lifecycle or schedules another attempt, per the §4.8 state
// machine.
type RetryController struct {
	emails       *repository.EmailRepository
	events       *repository.EventRepository
	suppressions *repository.SuppressionRepository
	broker       broker.Broker
	webhooks     *webhook.Dispatcher
	logger       zerolog.Logger
}

// NewRetryController constructs a RetryController.
func NewRetryController(emails *repository.EmailRepository, events *repository.EventRepository, suppressions *repository.SuppressionRepository, b broker.Broker, webhooks *webhook.Dispatcher, logger zerolog.Logger) *RetryController {
	return &RetryController{emails: emails, events: events, suppressions: suppressions, broker: b, webhooks: webhooks, logger: logger}
}

// HandleFailure classifies a send failure against email/queue state and
// either fails the email permanently or schedules a retry (§4.8). leaseID
// is the broker lease for the job currently being processed; it is always
// acked by this call, win or lose, since either outcome disposes of the
// current attempt (a retry enqueues a fresh job rather than extending the
// existing lease).
func (c *RetryController) HandleFailure(ctx context.Context, email *models.Email, queue *models.Queue, leaseID string, smtpCode int, rawMessage string) error {
	permanent := ClassifyFailure(smtpCode, rawMessage)
	if !permanent && email.RetryCount+1 > queue.MaxRetries {
		permanent = true
	}

	if permanent {
		if IsHardBouncePattern(rawMessage) {
			return c.failHardBounce(ctx, email, queue, leaseID, rawMessage)
		}
		return c.fail(ctx, email, queue, leaseID, rawMessage)
	}
	return c.retry(ctx, email, queue, leaseID, rawMessage)
}

// failHardBounce is the terminal path for a send-time rejection that names
// the recipient as bad ("user unknown", "550 5.1.1", ...): the email fails,
// but the event, webhook and suppression treatment is that of a hard
// bounce — every recipient gets a permanent hard_bounce entry so the next
// submission is blocked up front.
func (c *RetryController) failHardBounce(ctx context.Context, email *models.Email, queue *models.Queue, leaseID, message string) error {
	ok, err := c.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusQueued, models.StatusProcessing},
		models.StatusFailed, map[string]any{"lastError": message})
	if err != nil {
		return err
	}
	if ok {
		dataBag := map[string]any{
			"bounceType":    "hard",
			"bounceSubType": "permanent_failure",
			"error":         message,
		}
		if err := c.events.Append(ctx, &models.EmailEvent{
			ID: uuid.New(), EmailID: email.ID, EventType: models.EventBounced,
			Data: dataBag, CreatedAt: time.Now(),
		}); err != nil {
			c.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to append bounced event")
		}

		if c.suppressions != nil {
			for _, addr := range email.Recipients() {
				if err := c.suppressions.Upsert(ctx, &models.Suppression{
					ID: uuid.New(), AppID: &email.AppID, Address: addr,
					Reason: models.ReasonHardBounce, SourceEmailID: &email.ID, CreatedAt: time.Now(),
				}); err != nil {
					c.logger.Error().Err(err).Str("address", addr).Msg("failed to upsert hard-bounce suppression")
				}
			}
		}

		c.emitEmailWebhook(ctx, email, queue, models.WebhookEmailBounced, models.StatusFailed, &models.InnerEvent{
			Type: models.EventBounced, Timestamp: time.Now(), Data: dataBag,
		})
	}
	if c.broker != nil && leaseID != "" {
		return c.broker.Ack(ctx, leaseID)
	}
	return nil
}

func (c *RetryController) fail(ctx context.Context, email *models.Email, queue *models.Queue, leaseID, message string) error {
	ok, err := c.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusQueued, models.StatusProcessing},
		models.StatusFailed, map[string]any{"lastError": message})
	if err != nil {
		return err
	}
	if ok {
		if err := c.events.Append(ctx, &models.EmailEvent{
			ID: uuid.New(), EmailID: email.ID, EventType: models.EventFailed,
			Data: map[string]any{"error": message}, CreatedAt: time.Now(),
		}); err != nil {
			c.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to append failed event")
		}
		c.emitEmailWebhook(ctx, email, queue, models.WebhookEmailFailed, models.StatusFailed, &models.InnerEvent{
			Type: models.EventFailed, Timestamp: time.Now(), Data: map[string]any{"error": message},
		})
	}
	if c.broker != nil && leaseID != "" {
		return c.broker.Ack(ctx, leaseID)
	}
	return nil
}

func (c *RetryController) retry(ctx context.Context, email *models.Email, queue *models.Queue, leaseID, message string) error {
	newCount := email.RetryCount + 1

	ok, err := c.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusProcessing},
		models.StatusQueued, map[string]any{"retryCount": newCount, "lastError": message})
	if err != nil {
		return err
	}
	if ok {
		if err := c.events.Append(ctx, &models.EmailEvent{
			ID: uuid.New(), EmailID: email.ID, EventType: models.EventQueued,
			Data: map[string]any{"retry": true, "attempt": newCount, "error": message}, CreatedAt: time.Now(),
		}); err != nil {
			c.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to append retry-queued event")
		}
	}

	delays := queue.RetryDelay
	if len(delays) == 0 {
		delays = models.DefaultRetryDelay
	}
	idx := newCount
	if idx > len(delays)-1 {
		idx = len(delays) - 1
	}
	delay := time.Duration(delays[idx]) * time.Second

	if c.broker != nil {
		body, err := json.Marshal(models.EmailJob{EmailID: email.ID, AppID: email.AppID, QueueID: email.QueueID})
		if err != nil {
			return err
		}
		if err := c.broker.Enqueue(ctx, broker.LaneEmail, queue.Priority, delay, body); err != nil {
			return err
		}
		if leaseID != "" {
			return c.broker.Ack(ctx, leaseID)
		}
	}
	return nil
}

func (c *RetryController) emitEmailWebhook(ctx context.Context, email *models.Email, queue *models.Queue, eventType models.WebhookEventType, status models.EmailStatus, inner *models.InnerEvent) {
	if c.webhooks == nil {
		return
	}
	queueName := ""
	if queue != nil {
		queueName = queue.Name
	}
	to := make([]string, 0, len(email.To))
	for _, a := range email.To {
		to = append(to, a.Email)
	}
	payload := models.WebhookPayload{
		ID: uuid.New(), Type: eventType, Timestamp: time.Now(),
		Data: models.WebhookData{
			EmailID: email.ID, MessageID: email.MessageID, AppID: email.AppID,
			QueueName: queueName, From: email.From.Email, To: to, Subject: email.Subject,
			Status: status, Metadata: email.Metadata, Event: inner,
		},
	}
	if err := c.webhooks.Enqueue(ctx, email.AppID, &email.ID, eventType, payload); err != nil {
		c.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to enqueue webhook")
	}
}

// BounceInput is the asynchronous processBounce job body (§4.9).
type BounceInput struct {
	EmailID            uuid.UUID `json:"emailId"`
	AppID              uuid.UUID `json:"appId"`
	BounceType         string    `json:"bounceType"`
	BounceSubType      string    `json:"bounceSubType,omitempty"`
	BounceMessage      string    `json:"bounceMessage,omitempty"`
	BouncedRecipients  []string  `json:"bouncedRecipients"`
	Timestamp          time.Time `json:"timestamp"`
}

// ComplaintInput is the asynchronous processComplaint job body (§4.9).
type ComplaintInput struct {
	EmailID              uuid.UUID `json:"emailId"`
	AppID                uuid.UUID `json:"appId"`
	ComplaintType        string    `json:"complaintType,omitempty"`
	ComplainedRecipients []string  `json:"complainedRecipients"`
	Timestamp            time.Time `json:"timestamp"`
}

// DeliveryInput is the asynchronous processDelivery job body: a positive
// DSN confirming the remote MTA accepted the message for its recipients.
type DeliveryInput struct {
	EmailID   uuid.UUID `json:"emailId"`
	AppID     uuid.UUID `json:"appId"`
	Timestamp time.Time `json:"timestamp"`
}

// BounceProcessor implements C9: updating email/suppression state from
// bounce and complaint notifications, and emitting the matching webhooks.
type BounceProcessor struct {
	emails       *repository.EmailRepository
	events       *repository.EventRepository
	suppressions *repository.SuppressionRepository
	analytics    *repository.AnalyticsRepository
	webhooks     *webhook.Dispatcher
	logger       zerolog.Logger
}

// NewBounceProcessor constructs a BounceProcessor. analytics may be nil if
// the deployment has no analytics aggregation configured.
func NewBounceProcessor(emails *repository.EmailRepository, events *repository.EventRepository, suppressions *repository.SuppressionRepository, analytics *repository.AnalyticsRepository, webhooks *webhook.Dispatcher, logger zerolog.Logger) *BounceProcessor {
	return &BounceProcessor{emails: emails, events: events, suppressions: suppressions, analytics: analytics, webhooks: webhooks, logger: logger}
}

// isHardBounceType reports whether a DSN bounce type/subtype indicates a
// permanent failure; anything else is treated as a soft bounce that
// expires after 7 days (§4.9).
func isHardBounceType(bounceType, bounceSubType string) bool {
	if bounceType == "permanent" || bounceType == "hard" {
		return true
	}
	// RFC 3463 class "5" enhanced status codes (e.g. "5.1.1") are permanent.
	return len(bounceSubType) > 0 && bounceSubType[0] == '5'
}

// ProcessBounce handles an asynchronous processBounce job (§4.9): marks the
// email bounced, appends the event, and upserts a suppression entry per
// bouncing recipient with reason hard_bounce or soft_bounce.
func (p *BounceProcessor) ProcessBounce(ctx context.Context, in BounceInput) error {
	email, err := p.emails.GetByID(ctx, in.AppID, in.EmailID)
	if err != nil {
		return err
	}

	dataBag := map[string]any{
		"bounceType":        in.BounceType,
		"bounceSubType":     in.BounceSubType,
		"bouncedRecipients": in.BouncedRecipients,
	}
	if in.BounceMessage != "" {
		dataBag["bounceMessage"] = in.BounceMessage
	}

	ok, err := p.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusQueued, models.StatusProcessing, models.StatusSent},
		models.StatusBounced, nil)
	if err != nil {
		return err
	}
	if ok {
		if err := p.events.Append(ctx, &models.EmailEvent{
			ID: uuid.New(), EmailID: email.ID, EventType: models.EventBounced,
			Data: dataBag, CreatedAt: in.Timestamp,
		}); err != nil {
			p.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to append bounced event")
		}
	}

	hard := isHardBounceType(in.BounceType, in.BounceSubType)
	reason := models.ReasonSoftBounce
	var expiresAt *time.Time
	if hard {
		reason = models.ReasonHardBounce
	} else {
		t := time.Now().Add(models.SoftBounceExpiry)
		expiresAt = &t
	}

	if p.analytics != nil {
		if err := p.analytics.IncrementBounceKind(ctx, in.AppID, hard, in.Timestamp); err != nil {
			p.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to record bounce analytics")
		}
	}

	for _, addr := range in.BouncedRecipients {
		if err := p.suppressions.Upsert(ctx, &models.Suppression{
			ID: uuid.New(), AppID: &in.AppID, Address: addr, Reason: reason,
			SourceEmailID: &email.ID, ExpiresAt: expiresAt, CreatedAt: time.Now(),
		}); err != nil {
			p.logger.Error().Err(err).Str("address", addr).Msg("failed to upsert bounce suppression")
		}
	}

	p.emitWebhook(ctx, email, models.WebhookEmailBounced, models.StatusBounced, &models.InnerEvent{
		Type: models.EventBounced, Timestamp: in.Timestamp, Data: dataBag,
	})
	return nil
}

// ProcessDelivery handles an asynchronous processDelivery job: the
// sent→delivered transition of the email state machine. A delivery
// notification for an email that already bounced or failed loses the CAS
// and is dropped, keeping terminal states terminal.
func (p *BounceProcessor) ProcessDelivery(ctx context.Context, in DeliveryInput) error {
	email, err := p.emails.GetByID(ctx, in.AppID, in.EmailID)
	if err != nil {
		return err
	}

	ok, err := p.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusSent},
		models.StatusDelivered, map[string]any{"deliveredAt": in.Timestamp})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := p.events.Append(ctx, &models.EmailEvent{
		ID: uuid.New(), EmailID: email.ID, EventType: models.EventDelivered,
		CreatedAt: in.Timestamp,
	}); err != nil {
		p.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to append delivered event")
	}

	if p.analytics != nil {
		if err := p.analytics.Increment(ctx, in.AppID, models.EventDelivered, in.Timestamp); err != nil {
			p.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to record delivery analytics")
		}
	}

	p.emitWebhook(ctx, email, models.WebhookEmailDelivered, models.StatusDelivered, &models.InnerEvent{
		Type: models.EventDelivered, Timestamp: in.Timestamp,
	})
	return nil
}

// ProcessComplaint handles an asynchronous processComplaint job (§4.9):
// appends a complained event without changing email status, and upgrades
// suppression to the complaint reason (which always outranks a prior
// bounce or manual entry, §3).
func (p *BounceProcessor) ProcessComplaint(ctx context.Context, in ComplaintInput) error {
	email, err := p.emails.GetByID(ctx, in.AppID, in.EmailID)
	if err != nil {
		return err
	}

	dataBag := map[string]any{"complainedRecipients": in.ComplainedRecipients}
	if in.ComplaintType != "" {
		dataBag["complaintType"] = in.ComplaintType
	}

	if err := p.events.Append(ctx, &models.EmailEvent{
		ID: uuid.New(), EmailID: email.ID, EventType: models.EventComplained,
		Data: dataBag, CreatedAt: in.Timestamp,
	}); err != nil {
		p.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to append complained event")
	}

	for _, addr := range in.ComplainedRecipients {
		if err := p.suppressions.Upsert(ctx, &models.Suppression{
			ID: uuid.New(), AppID: &in.AppID, Address: addr, Reason: models.ReasonComplaint,
			SourceEmailID: &email.ID, ExpiresAt: nil, CreatedAt: time.Now(),
		}); err != nil {
			p.logger.Error().Err(err).Str("address", addr).Msg("failed to upsert complaint suppression")
		}
	}

	p.emitWebhook(ctx, email, models.WebhookEmailComplained, email.Status, &models.InnerEvent{
		Type: models.EventComplained, Timestamp: in.Timestamp, Data: dataBag,
	})
	return nil
}

func (p *BounceProcessor) emitWebhook(ctx context.Context, email *models.Email, eventType models.WebhookEventType, status models.EmailStatus, inner *models.InnerEvent) {
	if p.webhooks == nil {
		return
	}
	to := make([]string, 0, len(email.To))
	for _, a := range email.To {
		to = append(to, a.Email)
	}
	payload := models.WebhookPayload{
		ID: uuid.New(), Type: eventType, Timestamp: time.Now(),
		Data: models.WebhookData{
			EmailID: email.ID, MessageID: email.MessageID, AppID: email.AppID,
			From: email.From.Email, To: to, Subject: email.Subject,
			Status: status, Metadata: email.Metadata, Event: inner,
		},
	}
	if err := p.webhooks.Enqueue(ctx, email.AppID, &email.ID, eventType, payload); err != nil {
		p.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to enqueue webhook")
	}
}
