package repository

import (
	"context"
	"errors"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReputationRepository persists the per-app rolling reputation row (§3,
// §4.10).
type ReputationRepository struct {
	pool *pgxpool.Pool
}

// NewReputationRepository constructs a ReputationRepository.
func NewReputationRepository(pool *pgxpool.Pool) *ReputationRepository {
	return &ReputationRepository{pool: pool}
}

// Upsert writes the latest computed reputation for an app.
func (r *ReputationRepository) Upsert(ctx context.Context, rep *models.AppReputation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO app_reputation (app_id, bounce_rate_24h, complaint_rate_24h, score, throttled, throttle_reason, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
		ON CONFLICT (app_id) DO UPDATE SET
			bounce_rate_24h=EXCLUDED.bounce_rate_24h,
			complaint_rate_24h=EXCLUDED.complaint_rate_24h,
			score=EXCLUDED.score,
			throttled=EXCLUDED.throttled,
			throttle_reason=EXCLUDED.throttle_reason,
			updated_at=EXCLUDED.updated_at
	`, rep.AppID, rep.BounceRate24h, rep.ComplaintRate24h, rep.Score, rep.Throttled, rep.ThrottleReason, rep.UpdatedAt)
	return err
}

// Get loads an app's reputation; a never-scored app is reported as
// untouched (zero-valued, not throttled) rather than an error.
func (r *ReputationRepository) Get(ctx context.Context, appID uuid.UUID) (*models.AppReputation, error) {
	var rep models.AppReputation
	var reason *string
	err := r.pool.QueryRow(ctx, `
		SELECT app_id, bounce_rate_24h, complaint_rate_24h, score, throttled, throttle_reason, updated_at
		FROM app_reputation WHERE app_id=$1
	`, appID).Scan(&rep.AppID, &rep.BounceRate24h, &rep.ComplaintRate24h, &rep.Score, &rep.Throttled, &reason, &rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.AppReputation{AppID: appID, Score: 100}, nil
	}
	if err != nil {
		return nil, err
	}
	if reason != nil {
		rep.ThrottleReason = *reason
	}
	return &rep, nil
}

// ListActiveAppIDs returns apps with email activity in the last 24h, the
// reputation engine's scan set (§4.10: "per app with recent activity").
func (r *ReputationRepository) ListActiveAppIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT app_id FROM emails WHERE created_at >= now() - interval '24 hours'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ActivityCounts returns (sent, bounced, complained) counts over the last
// 24h for an app, the inputs to ComputeReputation (§4.10).
func (r *ReputationRepository) ActivityCounts(ctx context.Context, appID uuid.UUID) (sent, bounced, complained int64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('sent','delivered','bounced')),
			COUNT(*) FILTER (WHERE status = 'bounced')
		FROM emails WHERE app_id=$1 AND created_at >= now() - interval '24 hours'
	`, appID).Scan(&sent, &bounced)
	if err != nil {
		return 0, 0, 0, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_events ev JOIN emails e ON e.id = ev.email_id
		WHERE e.app_id=$1 AND ev.event_type='complained' AND ev.created_at >= now() - interval '24 hours'
	`, appID).Scan(&complained)
	return sent, bounced, complained, err
}
