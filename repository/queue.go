package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueueRepository persists Queue rows (§3).
type QueueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository constructs a QueueRepository.
func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

// Create inserts a queue; unique (app_id,name) violations surface as
// ErrConflict (handler maps this to DUPLICATE_QUEUE).
func (r *QueueRepository) Create(ctx context.Context, q *models.Queue) error {
	retryDelay, _ := json.Marshal(q.RetryDelay)
	settings, _ := json.Marshal(q.Settings)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queues (id, app_id, name, priority, rate_limit, max_retries, retry_delay,
			smtp_config_id, paused, tracking_enabled, settings, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, q.ID, q.AppID, q.Name, q.Priority, q.RateLimit, q.MaxRetries, retryDelay,
		q.SMTPConfigID, q.Paused, q.TrackingEnabled, settings, q.CreatedAt, q.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

const queueColumns = `id, app_id, name, priority, rate_limit, max_retries, retry_delay,
	smtp_config_id, paused, tracking_enabled, settings, created_at, updated_at`

func scanQueue(row pgx.Row) (*models.Queue, error) {
	var q models.Queue
	var retryDelay, settings []byte
	err := row.Scan(&q.ID, &q.AppID, &q.Name, &q.Priority, &q.RateLimit, &q.MaxRetries, &retryDelay,
		&q.SMTPConfigID, &q.Paused, &q.TrackingEnabled, &settings, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(retryDelay, &q.RetryDelay)
	_ = json.Unmarshal(settings, &q.Settings)
	return &q, nil
}

// GetByAppAndName resolves a queue by (appId, queueName), per §4.1 step 1.
func (r *QueueRepository) GetByAppAndName(ctx context.Context, appID uuid.UUID, name string) (*models.Queue, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE app_id=$1 AND name=$2`, appID, name)
	q, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// GetByID loads a queue by id, scoped to its app.
func (r *QueueRepository) GetByID(ctx context.Context, appID, id uuid.UUID) (*models.Queue, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id=$1 AND app_id=$2`, id, appID)
	q, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// List returns every queue for an app.
func (r *QueueRepository) List(ctx context.Context, appID uuid.UUID) ([]models.Queue, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM queues WHERE app_id=$1 ORDER BY created_at ASC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// Update rewrites a queue's mutable fields (§6 queue CRUD).
func (r *QueueRepository) Update(ctx context.Context, q *models.Queue) error {
	retryDelay, _ := json.Marshal(q.RetryDelay)
	settings, _ := json.Marshal(q.Settings)
	tag, err := r.pool.Exec(ctx, `
		UPDATE queues SET name=$3, priority=$4, rate_limit=$5, max_retries=$6, retry_delay=$7,
			smtp_config_id=$8, tracking_enabled=$9, settings=$10, updated_at=$11
		WHERE id=$1 AND app_id=$2
	`, q.ID, q.AppID, q.Name, q.Priority, q.RateLimit, q.MaxRetries, retryDelay,
		q.SMTPConfigID, q.TrackingEnabled, settings, q.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a queue (§6 queue CRUD).
func (r *QueueRepository) Delete(ctx context.Context, appID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queues WHERE id=$1 AND app_id=$2`, id, appID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPaused toggles the paused flag (§6 pause/resume).
func (r *QueueRepository) SetPaused(ctx context.Context, id uuid.UUID, paused bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE queues SET paused=$2, updated_at=now() WHERE id=$1`, id, paused)
	return err
}

// Stats returns live counts by status for a queue (§6 GET /queues/{id}/stats).
func (r *QueueRepository) Stats(ctx context.Context, id uuid.UUID) (map[models.EmailStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM emails WHERE queue_id=$1 GROUP BY status`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[models.EmailStatus]int64{}
	for rows.Next() {
		var status models.EmailStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}
