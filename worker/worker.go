// Package worker implements the Email Worker (C7): a fixed-size pool of
// routines that each lease one job from the broker, run it through the
// eight-step send protocol of §4.2, and return the result before leasing
// another. Grounded on the reference smtp-server queue Worker's
// ticker/lease/process loop, retargeted from the reference's local-mailbox
// and DNS-MX delivery onto this system's rate-limit/reputation/suppression
// gates and the pooled outbound relay (smtppool).
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/analytics"
	"github.com/CosminFerecatu/mail-queue-sub000/bounceproc"
	"github.com/CosminFerecatu/mail-queue-sub000/broker"
	"github.com/CosminFerecatu/mail-queue-sub000/metrics"
	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/ratelimit"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/smtppool"
	"github.com/CosminFerecatu/mail-queue-sub000/tracking"
	"github.com/CosminFerecatu/mail-queue-sub000/webhook"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWorkerCount is §4.2's "fixed-size pool of worker routines (default
// 10)".
const DefaultWorkerCount = 10

// leaseVisibility bounds how long a worker has to finish a job before the
// broker considers the lease expired and redelivers it.
const leaseVisibility = 2 * time.Minute

// leaseWaitFor is how long one Lease call blocks for a job before
// returning empty, letting the loop observe ctx cancellation promptly.
const leaseWaitFor = 5 * time.Second

// reputationThrottleDelay is §4.2 step 3's fixed re-enqueue delay for a
// throttled app.
const reputationThrottleDelay = 5 * time.Minute

// Dispatcher runs the worker pool.
type Dispatcher struct {
	emails       *repository.EmailRepository
	events       *repository.EventRepository
	queues       *repository.QueueRepository
	suppressions *repository.SuppressionRepository
	smtpConfigs  *repository.SMTPConfigRepository
	reputations  *repository.ReputationRepository

	broker    broker.Broker
	limiter   *ratelimit.Limiter
	pool      *smtppool.Pool
	tracking  *tracking.Rewriter
	retry     *bounceproc.RetryController
	bounces   *bounceproc.BounceProcessor
	webhooks  *webhook.Dispatcher
	analytics *analytics.Aggregator

	numWorkers int
	logger     zerolog.Logger
}

// Config bundles Dispatcher's dependencies so New doesn't take a dozen
// positional arguments.
type Config struct {
	Emails       *repository.EmailRepository
	Events       *repository.EventRepository
	Queues       *repository.QueueRepository
	Suppressions *repository.SuppressionRepository
	SMTPConfigs  *repository.SMTPConfigRepository
	Reputations  *repository.ReputationRepository
	Broker       broker.Broker
	Limiter      *ratelimit.Limiter
	Pool         *smtppool.Pool
	Tracking     *tracking.Rewriter
	Retry        *bounceproc.RetryController
	Bounces      *bounceproc.BounceProcessor
	Webhooks     *webhook.Dispatcher
	Analytics    *analytics.Aggregator
	NumWorkers   int
	Logger       zerolog.Logger
}

// New constructs a Dispatcher. NumWorkers <= 0 falls back to
// DefaultWorkerCount.
func New(cfg Config) *Dispatcher {
	n := cfg.NumWorkers
	if n <= 0 {
		n = DefaultWorkerCount
	}
	return &Dispatcher{
		emails: cfg.Emails, events: cfg.Events, queues: cfg.Queues,
		suppressions: cfg.Suppressions, smtpConfigs: cfg.SMTPConfigs, reputations: cfg.Reputations,
		broker: cfg.Broker, limiter: cfg.Limiter, pool: cfg.Pool, tracking: cfg.Tracking,
		retry: cfg.Retry, bounces: cfg.Bounces, webhooks: cfg.Webhooks, analytics: cfg.Analytics,
		numWorkers: n, logger: cfg.Logger,
	}
}

// bounceComplaintWorkerCount is the pool size for the bounce, complaint
// and delivery lanes (§4.9): these carry out-of-band DSN notifications, a
// much lower volume than the email send lane, so a fixed small pool
// suffices.
const bounceComplaintWorkerCount = 2

// Run blocks, running numWorkers routines against the email lane plus
// small pools against each auxiliary lane until ctx is cancelled, then
// waits for every in-flight job to finish (§5 cancellation: "waits for
// all active jobs to complete").
func (d *Dispatcher) Run(ctx context.Context) {
	metrics.WorkerStatus.Set(1)
	defer metrics.WorkerStatus.Set(0)

	total := 0
	done := make(chan struct{})
	spawn := func(fn func(ctx context.Context, id int), n int) {
		for i := 0; i < n; i++ {
			total++
			go func(id int) {
				fn(ctx, id)
				done <- struct{}{}
			}(i)
		}
	}

	spawn(d.loop, d.numWorkers)
	if d.webhooks != nil {
		spawn(d.webhookLoop, auxWorkerCount)
	}
	if d.tracking != nil {
		spawn(d.trackingLoop, auxWorkerCount)
	}
	if d.analytics != nil {
		spawn(d.analyticsLoop, auxWorkerCount)
	}
	if d.bounces != nil {
		spawn(d.bounceLoop, bounceComplaintWorkerCount)
		spawn(d.complaintLoop, bounceComplaintWorkerCount)
		spawn(d.deliveryLoop, bounceComplaintWorkerCount)
	}

	for i := 0; i < total; i++ {
		<-done
	}
}

// auxWorkerCount is the pool size for the webhook/tracking/analytics
// lanes: low-volume side work next to the main send pool.
const auxWorkerCount = 2

// consumeLane is the shared lease/decode/handle/ack skeleton behind every
// auxiliary lane loop.
func (d *Dispatcher) consumeLane(ctx context.Context, lane string, id int, handle func(ctx context.Context, body []byte) error) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := d.broker.Lease(ctx, lane, leaseVisibility, leaseWaitFor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error().Err(err).Str("lane", lane).Int("worker", id).Msg("failed to lease job")
			continue
		}
		if job == nil {
			continue
		}
		if err := handle(ctx, job.Body); err != nil {
			d.logger.Error().Err(err).Str("lane", lane).Msg("job handler failed")
		}
		d.broker.Ack(ctx, job.LeaseID)
	}
}

// webhookLoop drains the webhook lane: each job is a pointer to a pending
// delivery row whose first POST should happen now rather than on the next
// sweep (§4.11).
func (d *Dispatcher) webhookLoop(ctx context.Context, id int) {
	d.consumeLane(ctx, broker.LaneWebhook, id, func(ctx context.Context, body []byte) error {
		var job models.WebhookJob
		if err := json.Unmarshal(body, &job); err != nil {
			d.logger.Error().Err(err).Msg("malformed webhook job body, dropping")
			return nil
		}
		return d.webhooks.Deliver(ctx, job.DeliveryID)
	})
}

// trackingLoop drains the tracking lane: open and click observations
// enqueued by the pixel/redirect endpoints (§4.5).
func (d *Dispatcher) trackingLoop(ctx context.Context, id int) {
	d.consumeLane(ctx, broker.LaneTracking, id, func(ctx context.Context, body []byte) error {
		var job models.TrackingJob
		if err := json.Unmarshal(body, &job); err != nil {
			d.logger.Error().Err(err).Msg("malformed tracking job body, dropping")
			return nil
		}
		switch job.Kind {
		case models.TrackingKindOpen:
			if err := d.tracking.RecordOpen(ctx, job.EmailID, job.UserAgent, job.IP); err != nil {
				return err
			}
			d.recordAnalyticsForEmail(ctx, job.EmailID, models.EventOpened)
		case models.TrackingKindClick:
			link, err := d.tracking.RecordClick(ctx, job.Code, job.UserAgent, job.IP)
			if err != nil {
				return err
			}
			d.recordAnalyticsForEmail(ctx, link.EmailID, models.EventClicked)
		default:
			d.logger.Warn().Str("kind", job.Kind).Msg("unknown tracking job kind, dropping")
		}
		return nil
	})
}

// analyticsLoop drains the analytics lane into the bucket table. Raw email
// events are already on disk by the time an increment lands here, so a
// dropped job costs a counter, never history.
func (d *Dispatcher) analyticsLoop(ctx context.Context, id int) {
	d.consumeLane(ctx, broker.LaneAnalytics, id, func(ctx context.Context, body []byte) error {
		var job models.AnalyticsJob
		if err := json.Unmarshal(body, &job); err != nil {
			d.logger.Error().Err(err).Msg("malformed analytics job body, dropping")
			return nil
		}
		return d.analytics.RecordEvent(ctx, job.AppID, job.Event, job.At)
	})
}

// recordAnalyticsForEmail resolves an email's app and enqueues the bucket
// increment on the analytics lane, falling back to a direct write when the
// enqueue fails.
func (d *Dispatcher) recordAnalyticsForEmail(ctx context.Context, emailID uuid.UUID, evt models.EventType) {
	appID, err := d.emails.AppIDOf(ctx, emailID)
	if err != nil {
		d.logger.Warn().Err(err).Str("emailId", emailID.String()).Msg("failed to resolve app for analytics increment")
		return
	}
	d.recordAnalytics(ctx, appID, evt, time.Now())
}

// recordAnalytics publishes one aggregate-stats job (§9's tagged union) on
// the analytics lane, or writes the increment directly if the broker
// refuses it.
func (d *Dispatcher) recordAnalytics(ctx context.Context, appID uuid.UUID, evt models.EventType, at time.Time) {
	if d.analytics == nil {
		return
	}
	body, err := json.Marshal(models.AnalyticsJob{AppID: appID, Event: evt, At: at})
	if err == nil {
		err = d.broker.Enqueue(ctx, broker.LaneAnalytics, 5, 0, body)
	}
	if err != nil {
		if rErr := d.analytics.RecordEvent(ctx, appID, evt, at); rErr != nil {
			d.logger.Error().Err(rErr).Str("appId", appID.String()).Msg("failed to record analytics increment")
		}
	}
}

// bounceLoop leases and processes processBounce jobs (§4.9) until ctx is
// cancelled.
func (d *Dispatcher) bounceLoop(ctx context.Context, id int) {
	d.consumeLane(ctx, broker.LaneBounce, id, func(ctx context.Context, body []byte) error {
		var in bounceproc.BounceInput
		if err := json.Unmarshal(body, &in); err != nil {
			d.logger.Error().Err(err).Msg("malformed bounce job body, dropping")
			return nil
		}
		return d.bounces.ProcessBounce(ctx, in)
	})
}

// complaintLoop leases and processes processComplaint jobs (§4.9) until
// ctx is cancelled.
func (d *Dispatcher) complaintLoop(ctx context.Context, id int) {
	d.consumeLane(ctx, broker.LaneComplaint, id, func(ctx context.Context, body []byte) error {
		var in bounceproc.ComplaintInput
		if err := json.Unmarshal(body, &in); err != nil {
			d.logger.Error().Err(err).Msg("malformed complaint job body, dropping")
			return nil
		}
		return d.bounces.ProcessComplaint(ctx, in)
	})
}

// deliveryLoop leases and processes processDelivery jobs (positive DSNs)
// until ctx is cancelled.
func (d *Dispatcher) deliveryLoop(ctx context.Context, id int) {
	d.consumeLane(ctx, broker.LaneDelivery, id, func(ctx context.Context, body []byte) error {
		var in bounceproc.DeliveryInput
		if err := json.Unmarshal(body, &in); err != nil {
			d.logger.Error().Err(err).Msg("malformed delivery job body, dropping")
			return nil
		}
		return d.bounces.ProcessDelivery(ctx, in)
	})
}

func (d *Dispatcher) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := d.broker.Lease(ctx, broker.LaneEmail, leaseVisibility, leaseWaitFor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error().Err(err).Int("worker", id).Msg("failed to lease email job")
			continue
		}
		if job == nil {
			continue
		}

		metrics.ActiveJobs.Inc()
		d.processJob(ctx, job)
		metrics.ActiveJobs.Dec()
	}
}

// processJob runs one job through the §4.2 protocol end to end.
func (d *Dispatcher) processJob(ctx context.Context, job *broker.Job) {
	start := time.Now()

	var body models.EmailJob
	if err := json.Unmarshal(job.Body, &body); err != nil {
		d.logger.Error().Err(err).Msg("malformed email job body, dropping")
		d.broker.Ack(ctx, job.LeaseID)
		return
	}

	email, err := d.emails.GetByID(ctx, body.AppID, body.EmailID)
	if err != nil {
		d.logger.Error().Err(err).Str("emailId", body.EmailID.String()).Msg("failed to load email for job")
		d.broker.Ack(ctx, job.LeaseID)
		return
	}

	queue, err := d.queues.GetByID(ctx, body.AppID, body.QueueID)
	if err != nil {
		d.logger.Error().Err(err).Str("queueId", body.QueueID.String()).Msg("failed to load queue for job")
		d.broker.Ack(ctx, job.LeaseID)
		return
	}

	status := d.dispatch(ctx, email, queue, job)
	if status == "" {
		return
	}
	metrics.EmailsProcessedTotal.WithLabelValues(email.AppID.String(), queue.Name, status).Inc()
	metrics.EmailProcessingDuration.WithLabelValues(email.AppID.String(), queue.Name).Observe(time.Since(start).Seconds())
}

// dispatch runs steps 1-8 and returns the metrics status label for a
// terminal (or send-attempted) outcome, or "" for a reschedule that isn't
// counted as processed (rate limit / reputation throttle, §4.2 steps 2-3).
func (d *Dispatcher) dispatch(ctx context.Context, email *models.Email, queue *models.Queue, job *broker.Job) string {
	// Step 1: fetch & guard.
	if email.Status != models.StatusQueued && email.Status != models.StatusProcessing {
		d.broker.Ack(ctx, job.LeaseID)
		return ""
	}
	if email.Status == models.StatusQueued {
		ok, err := d.emails.CompareAndSwapStatus(ctx, email.ID, []models.EmailStatus{models.StatusQueued}, models.StatusProcessing, nil)
		if err != nil {
			d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to transition to processing")
			return ""
		}
		if ok {
			email.Status = models.StatusProcessing
			d.appendEvent(ctx, email.ID, models.EventProcessing, nil)
		}
	}

	// Step 2: rate limit. The worker only re-checks the queue tier — the
	// apiKey/appDaily tiers are attributed to the submitting credential,
	// which the worker never sees — and it peeks rather than increments:
	// the counter was already charged once at submission (§4.3).
	if queue.RateLimit != nil {
		tr, err := d.limiter.PeekQueue(ctx, queue.ID.String(), *queue.RateLimit)
		if err != nil {
			d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("rate limit check failed")
			return ""
		}
		if !tr.Allowed {
			d.broker.Nack(ctx, job.LeaseID, ratelimit.EarliestResetDelay([]ratelimit.TierResult{*tr}))
			return ""
		}
	}

	// Step 3: reputation gate.
	rep, err := d.reputations.Get(ctx, email.AppID)
	if err != nil {
		d.logger.Error().Err(err).Str("appId", email.AppID.String()).Msg("reputation lookup failed")
		return ""
	}
	if rep.Throttled {
		d.broker.Nack(ctx, job.LeaseID, reputationThrottleDelay)
		return ""
	}

	// Step 4: suppression re-check.
	for _, addr := range email.Recipients() {
		check, err := d.suppressions.Check(ctx, email.AppID, addr)
		if err != nil {
			d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("suppression recheck failed")
			return ""
		}
		if check.IsSuppressed {
			d.failSuppressed(ctx, email, queue, job, addr, check.Reason)
			return "failed"
		}
	}

	// Step 5: body preparation.
	html := email.HTML
	if queue.TrackingEnabled && html != "" {
		rewritten, err := d.tracking.RewriteLinks(ctx, html, email.ID)
		if err != nil {
			d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("link rewrite failed, sending original body")
		} else {
			html = rewritten
		}
		html = d.tracking.InjectPixel(html, email.ID)
	}

	// Step 6: choose SMTP config.
	cfg, err := d.resolveSMTPConfig(ctx, email.AppID, queue)
	if err != nil {
		d.failNoConfig(ctx, email, queue, job)
		return "failed"
	}

	// Step 7: send.
	sendCtx, cancel := context.WithTimeout(ctx, cfgTimeout(cfg))
	msg := smtppool.Message{From: email.From.Email, To: email.Recipients(), Data: buildMIME(email, html)}
	sendErr := d.pool.Send(sendCtx, cfg, msg)
	cancel()

	if sendErr == nil {
		return d.succeed(ctx, email, queue, job)
	}

	// Step 8: failure.
	return d.failSend(ctx, email, queue, job, sendErr)
}

func cfgTimeout(cfg *models.SMTPConfig) time.Duration {
	if cfg.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

func (d *Dispatcher) resolveSMTPConfig(ctx context.Context, appID uuid.UUID, queue *models.Queue) (*models.SMTPConfig, error) {
	if queue.SMTPConfigID != nil {
		cfg, err := d.smtpConfigs.GetByID(ctx, *queue.SMTPConfigID)
		if err == nil {
			return cfg, nil
		}
	}
	return d.smtpConfigs.GetActiveForApp(ctx, appID)
}

func (d *Dispatcher) succeed(ctx context.Context, email *models.Email, queue *models.Queue, job *broker.Job) string {
	now := time.Now()
	ok, err := d.emails.CompareAndSwapStatus(ctx, email.ID, []models.EmailStatus{models.StatusProcessing}, models.StatusSent, map[string]any{"sentAt": now})
	if err != nil {
		d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to mark email sent")
	}
	if ok {
		d.appendEvent(ctx, email.ID, models.EventSent, nil)
		d.emitWebhook(ctx, email, queue, models.WebhookEmailSent, models.StatusSent, &models.InnerEvent{Type: models.EventSent, Timestamp: now})
		d.recordAnalytics(ctx, email.AppID, models.EventSent, now)
	}
	d.broker.Ack(ctx, job.LeaseID)
	return "sent"
}

func (d *Dispatcher) failSuppressed(ctx context.Context, email *models.Email, queue *models.Queue, job *broker.Job, addr string, reason models.SuppressionReason) {
	lastError := "recipient_suppressed:" + addr
	ok, err := d.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusQueued, models.StatusProcessing},
		models.StatusFailed, map[string]any{"lastError": lastError})
	if err != nil {
		d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to fail suppressed email")
	}
	if ok {
		dataBag := map[string]any{"bounceType": "hard", "bounceSubType": "suppressed", "address": addr, "reason": reason}
		d.appendEvent(ctx, email.ID, models.EventBounced, dataBag)
		if err := d.suppressions.Upsert(ctx, &models.Suppression{
			ID: uuid.New(), AppID: &email.AppID, Address: addr, Reason: reason, SourceEmailID: &email.ID, CreatedAt: time.Now(),
		}); err != nil {
			d.logger.Error().Err(err).Str("address", addr).Msg("failed to update suppression source")
		}
		d.emitWebhook(ctx, email, queue, models.WebhookEmailBounced, models.StatusFailed, &models.InnerEvent{Type: models.EventBounced, Timestamp: time.Now(), Data: dataBag})
	}
	d.broker.Ack(ctx, job.LeaseID)
}

func (d *Dispatcher) failNoConfig(ctx context.Context, email *models.Email, queue *models.Queue, job *broker.Job) {
	const lastError = "no_smtp_config"
	ok, err := d.emails.CompareAndSwapStatus(ctx, email.ID,
		[]models.EmailStatus{models.StatusQueued, models.StatusProcessing},
		models.StatusFailed, map[string]any{"lastError": lastError})
	if err != nil {
		d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to fail unconfigured email")
	}
	if ok {
		d.appendEvent(ctx, email.ID, models.EventFailed, map[string]any{"error": lastError})
		d.emitWebhook(ctx, email, queue, models.WebhookEmailFailed, models.StatusFailed, &models.InnerEvent{Type: models.EventFailed, Timestamp: time.Now(), Data: map[string]any{"error": lastError}})
	}
	d.broker.Ack(ctx, job.LeaseID)
}

func (d *Dispatcher) failSend(ctx context.Context, email *models.Email, queue *models.Queue, job *broker.Job, sendErr error) string {
	code, message := classifySMTPError(sendErr)

	permanent := bounceproc.ClassifyFailure(code, message)
	if !permanent && email.RetryCount+1 > queue.MaxRetries {
		permanent = true
	}
	if !permanent {
		metrics.EmailRetriesTotal.WithLabelValues(email.AppID.String(), queue.Name).Inc()
	}

	if err := d.retry.HandleFailure(ctx, email, queue, job.LeaseID, code, message); err != nil {
		d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("retry controller failed")
	}
	if permanent {
		return "failed"
	}
	return "retry"
}

// classifySMTPError extracts the numeric reply code net/smtp surfaces via
// textproto.Error, falling back to 0 for connection-level errors (dial
// failure, timeout) that never reached a protocol reply.
func classifySMTPError(err error) (code int, message string) {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code, protoErr.Msg
	}
	return 0, err.Error()
}

func (d *Dispatcher) appendEvent(ctx context.Context, emailID uuid.UUID, eventType models.EventType, data map[string]any) {
	if err := d.events.Append(ctx, &models.EmailEvent{ID: uuid.New(), EmailID: emailID, EventType: eventType, Data: data, CreatedAt: time.Now()}); err != nil {
		d.logger.Error().Err(err).Str("emailId", emailID.String()).Msg("failed to append event")
	}
}

func (d *Dispatcher) emitWebhook(ctx context.Context, email *models.Email, queue *models.Queue, eventType models.WebhookEventType, status models.EmailStatus, inner *models.InnerEvent) {
	if d.webhooks == nil {
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
	if err := d.webhooks.Enqueue(ctx, email.AppID, &email.ID, eventType, payload); err != nil {
		d.logger.Error().Err(err).Str("emailId", email.ID.String()).Msg("failed to enqueue webhook")
	}
}

// buildMIME assembles the raw RFC 5322 message handed to the SMTP pool,
// grounded on the reference deliverEmail's header/multipart assembly.
func buildMIME(email *models.Email, html string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", formatAddress(email.From))
	fmt.Fprintf(&buf, "To: %s\r\n", formatAddressList(email.To))
	if email.ReplyTo != nil {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", formatAddress(*email.ReplyTo))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", email.Subject)
	fmt.Fprintf(&buf, "Message-ID: <%s@mailqueue>\r\n", email.ID.String())
	buf.WriteString("MIME-Version: 1.0\r\n")
	for k, v := range email.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	switch {
	case html != "" && email.Text != "":
		boundary := "boundary-" + email.ID.String()
		fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, email.Text)
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, html)
		fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	case html != "":
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(html)
	default:
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(email.Text)
	}
	return buf.Bytes()
}

func formatAddress(a models.Address) string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

func formatAddressList(addrs []models.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, formatAddress(a))
	}
	return strings.Join(parts, ", ")
}
