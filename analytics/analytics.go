// Package analytics implements the Analytics Aggregator (C13): recording
// per-event counter increments and rendering the overview/engagement/
// bounce summaries served by GET /analytics/* (§6). Grounded on the
// reference analytics service's increment-on-event, sum-on-read split,
// retargeted from its fixed daily-stat struct to the spec's UTC-day bucket
// table.
package analytics

import (
	"context"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/CosminFerecatu/mail-queue-sub000/repository"
	"github.com/google/uuid"
)

// Aggregator wraps AnalyticsRepository with the event-driven increment
// path and the read-side overview builders.
type Aggregator struct {
	repo *repository.AnalyticsRepository
}

// New constructs an Aggregator.
func New(repo *repository.AnalyticsRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// RecordEvent increments the appropriate bucket column for an email event,
// a no-op for event types analytics doesn't track (queued, processing,
// cancelled, failed).
func (a *Aggregator) RecordEvent(ctx context.Context, appID uuid.UUID, evt models.EventType, at time.Time) error {
	return a.repo.Increment(ctx, appID, evt, at)
}

// rate returns 0 when sent is 0, matching the reputation engine's
// zero-denominator convention (§4.10).
func rate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

// Overview builds the GET /analytics/overview response for [from, to].
func (a *Aggregator) Overview(ctx context.Context, appID uuid.UUID, from, to time.Time) (*models.AnalyticsOverview, error) {
	b, err := a.repo.Sum(ctx, appID, from, to)
	if err != nil {
		return nil, err
	}
	failed := b.Sent - b.Delivered - b.Bounced
	if failed < 0 {
		failed = 0
	}
	return &models.AnalyticsOverview{
		Sent:         b.Sent,
		Delivered:    b.Delivered,
		Bounced:      b.Bounced,
		Failed:       failed,
		DeliveryRate: rate(b.Delivered, b.Sent),
	}, nil
}

// Engagement builds the GET /analytics/engagement response for [from, to].
func (a *Aggregator) Engagement(ctx context.Context, appID uuid.UUID, from, to time.Time) (*models.EngagementOverview, error) {
	b, err := a.repo.Sum(ctx, appID, from, to)
	if err != nil {
		return nil, err
	}
	return &models.EngagementOverview{
		Opened:    b.Opened,
		Clicked:   b.Clicked,
		OpenRate:  rate(b.Opened, b.Sent),
		ClickRate: rate(b.Clicked, b.Sent),
	}, nil
}

// Bounces builds the GET /analytics/bounces response for [from, to].
func (a *Aggregator) Bounces(ctx context.Context, appID uuid.UUID, from, to time.Time) (*models.BounceOverview, error) {
	b, err := a.repo.Sum(ctx, appID, from, to)
	if err != nil {
		return nil, err
	}
	return &models.BounceOverview{
		HardBounces: b.HardBounced,
		SoftBounces: b.SoftBounced,
		Complaints:  b.Complained,
		BounceRate:  rate(b.Bounced, b.Sent),
	}, nil
}

// Series returns the raw per-day buckets for [from, to], the backing data
// for any time-series chart the handler layer renders.
func (a *Aggregator) Series(ctx context.Context, appID uuid.UUID, from, to time.Time) ([]models.AnalyticsBucket, error) {
	return a.repo.ListRange(ctx, appID, from, to)
}
