package repository

import (
	"context"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalyticsRepository maintains per-app, per-UTC-day event counters (C13).
// The aggregator increments a single column per event; the overview
// handlers sum ranges of rows.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository constructs an AnalyticsRepository.
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

var analyticsColumn = map[models.EventType]string{
	models.EventSent:         "sent",
	models.EventDelivered:    "delivered",
	models.EventOpened:       "opened",
	models.EventClicked:      "clicked",
	models.EventBounced:      "bounced",
	models.EventComplained:   "complained",
	models.EventUnsubscribed: "unsubscribed",
}

// Increment bumps today's bucket counter for the given event type. Event
// types with no analytics column (queued, processing, cancelled, failed)
// are silently ignored.
func (r *AnalyticsRepository) Increment(ctx context.Context, appID uuid.UUID, evt models.EventType, at time.Time) error {
	col, ok := analyticsColumn[evt]
	if !ok {
		return nil
	}
	bucket := at.UTC().Truncate(24 * time.Hour)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO analytics_buckets (app_id, bucket, `+col+`)
		VALUES ($1,$2,1)
		ON CONFLICT (app_id, bucket) DO UPDATE SET `+col+` = analytics_buckets.`+col+` + 1
	`, appID, bucket)
	return err
}

// IncrementBounceKind bumps today's hard_bounced or soft_bounced column, in
// addition to the generic "bounced" total incremented via Increment. Kept
// as a separate call since EventType alone can't distinguish the two
// (§4.9's hard/soft split lives on the suppression reason, not the event
// type).
func (r *AnalyticsRepository) IncrementBounceKind(ctx context.Context, appID uuid.UUID, hard bool, at time.Time) error {
	col := "soft_bounced"
	if hard {
		col = "hard_bounced"
	}
	bucket := at.UTC().Truncate(24 * time.Hour)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO analytics_buckets (app_id, bucket, `+col+`)
		VALUES ($1,$2,1)
		ON CONFLICT (app_id, bucket) DO UPDATE SET `+col+` = analytics_buckets.`+col+` + 1
	`, appID, bucket)
	return err
}

// Sum aggregates every bucket in [from, to] for an app.
func (r *AnalyticsRepository) Sum(ctx context.Context, appID uuid.UUID, from, to time.Time) (*models.AnalyticsBucket, error) {
	var b models.AnalyticsBucket
	b.AppID = appID.String()
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(sent),0), COALESCE(SUM(delivered),0), COALESCE(SUM(opened),0),
			COALESCE(SUM(clicked),0), COALESCE(SUM(bounced),0), COALESCE(SUM(hard_bounced),0),
			COALESCE(SUM(soft_bounced),0), COALESCE(SUM(complained),0), COALESCE(SUM(unsubscribed),0)
		FROM analytics_buckets WHERE app_id=$1 AND bucket BETWEEN $2 AND $3
	`, appID, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour)).Scan(
		&b.Sent, &b.Delivered, &b.Opened, &b.Clicked, &b.Bounced, &b.HardBounced, &b.SoftBounced, &b.Complained, &b.Unsubscribed)
	return &b, err
}

// ListRange returns each daily bucket in [from, to] for an app, used by
// time-series endpoints.
func (r *AnalyticsRepository) ListRange(ctx context.Context, appID uuid.UUID, from, to time.Time) ([]models.AnalyticsBucket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT bucket, sent, delivered, opened, clicked, bounced, hard_bounced, soft_bounced, complained, unsubscribed
		FROM analytics_buckets WHERE app_id=$1 AND bucket BETWEEN $2 AND $3
		ORDER BY bucket ASC
	`, appID, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AnalyticsBucket
	for rows.Next() {
		var b models.AnalyticsBucket
		b.AppID = appID.String()
		if err := rows.Scan(&b.Bucket, &b.Sent, &b.Delivered, &b.Opened, &b.Clicked, &b.Bounced, &b.HardBounced, &b.SoftBounced, &b.Complained, &b.Unsubscribed); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
