// Package cron implements the Cron Scheduler (C11): each tick, poll active
// scheduled jobs whose nextRunAt has passed, render their template, submit
// one email addressed to all of the job's recipients, and advance the
// schedule. Grounded on the
// reference queue manager's ticker-driven poll loop, paired with
// robfig/cron/v3 for the actual "what's the next run time" schedule math
// (the reference has no cron-expression scheduler of its own).
package cron

import (
	"context"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/CosminFerecatu/mail-queue-sub000/templating"
	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultInterval is the spec's default tick cadence (§4.12: "each tick,
// default 60 s").
const DefaultInterval = 60 * time.Second

// parser accepts the standard 5-field cron expression (§4.12: "rejected at
// write time" implies parsing also happens at write time; ValidateExpr
// below exposes that same parser to the handler layer).
var parser = robfigcron.NewParser(robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow)

// ValidateExpr reports whether a cron expression is parseable, used by the
// scheduled-jobs handler to reject bad expressions at write time (§4.12).
func ValidateExpr(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// NextRun computes the next fire time after `after` for a cron expression
// evaluated in the named IANA timezone.
func NextRun(expr, timezone string, after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after.In(loc)), nil
}

// Submitter is the narrow slice of the submission service the scheduler
// needs: enqueue one rendered email. Defined here rather than depending on
// the service package directly, avoiding an import cycle (service also
// depends on packages cron doesn't need).
type Submitter interface {
	SubmitRendered(ctx context.Context, appID, queueID uuid.UUID, to []models.Address, subject, html, text string, metadata map[string]any) error
}

// Scheduler polls scheduled_jobs each tick and fires any that are due.
type Scheduler struct {
	jobs      *repository.ScheduledJobRepository
	templates *repository.TemplateRepository
	submitter Submitter
	interval  time.Duration
	logger    zerolog.Logger
}

// New constructs a Scheduler. interval <= 0 falls back to DefaultInterval.
func New(jobs *repository.ScheduledJobRepository, templates *repository.TemplateRepository, submitter Submitter, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{jobs: jobs, templates: templates, submitter: submitter, interval: interval, logger: logger}
}

// Run blocks, ticking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error().Err(err).Msg("cron tick failed")
			}
		}
	}
}

// Tick runs one scan: every active job with nextRunAt <= now is fired and
// rescheduled (§4.12).
func (s *Scheduler) Tick(ctx context.Context) error {
	active, err := s.jobs.ListActive(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range active {
		job := &active[i]
		if job.NextRunAt != nil && job.NextRunAt.After(now) {
			continue
		}
		s.fire(ctx, job, now)
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, job *models.ScheduledJob, now time.Time) {
	logger := s.logger.With().Str("scheduledJobId", job.ID.String()).Logger()

	tmpl, err := s.templates.GetByID(ctx, job.AppID, job.TemplateID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load template for scheduled job")
		s.reschedule(ctx, job, now, logger)
		return
	}

	rendered, err := templating.Render(tmpl, job.TemplateData)
	if err != nil {
		logger.Error().Err(err).Msg("failed to render template for scheduled job")
		s.reschedule(ctx, job, now, logger)
		return
	}

	if err := s.submitter.SubmitRendered(ctx, job.AppID, job.QueueID, job.To, rendered.Subject, rendered.HTML, rendered.Text, map[string]any{"scheduledJobId": job.ID.String()}); err != nil {
		logger.Error().Err(err).Msg("failed to submit scheduled job send")
	}

	s.reschedule(ctx, job, now, logger)
}

func (s *Scheduler) reschedule(ctx context.Context, job *models.ScheduledJob, now time.Time, logger zerolog.Logger) {
	next, err := NextRun(job.CronExpr, job.Timezone, now)
	var nextPtr *time.Time
	if err != nil {
		logger.Error().Err(err).Msg("failed to compute next run; job will not fire again until corrected")
	} else {
		nextPtr = &next
	}
	lastRun := now
	if err := s.jobs.RecordRun(ctx, job.ID, &lastRun, nextPtr); err != nil {
		logger.Error().Err(err).Msg("failed to record scheduled job run")
	}
}
