package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookDeliveryRepository persists outbound notification attempts (§3,
// §4.11, §6). Grounded on the reference WebhookService's delivery
// bookkeeping, split out of the HTTP-calling logic which lives in the
// webhook package.
type WebhookDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookDeliveryRepository constructs a WebhookDeliveryRepository.
func NewWebhookDeliveryRepository(pool *pgxpool.Pool) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{pool: pool}
}

// Create inserts a new delivery row with status pending.
func (r *WebhookDeliveryRepository) Create(ctx context.Context, d *models.WebhookDelivery) error {
	payload, _ := json.Marshal(d.Payload)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, app_id, email_id, event_type, payload, status, attempts, last_error, next_retry_at, delivered_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11)
	`, d.ID, d.AppID, d.EmailID, d.EventType, payload, d.Status, d.Attempts, d.LastError, d.NextRetryAt, d.DeliveredAt, d.CreatedAt)
	return err
}

func scanWebhookDelivery(row pgx.Row) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	var payload []byte
	var lastError *string
	err := row.Scan(&d.ID, &d.AppID, &d.EmailID, &d.EventType, &payload, &d.Status, &d.Attempts, &lastError, &d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(payload, &d.Payload)
	if lastError != nil {
		d.LastError = *lastError
	}
	return &d, nil
}

const webhookColumns = `id, app_id, email_id, event_type, payload, status, attempts, last_error, next_retry_at, delivered_at, created_at`

// GetByID loads one delivery.
func (r *WebhookDeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_deliveries WHERE id=$1`, id)
	d, err := scanWebhookDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// MarkDelivered records a successful delivery.
func (r *WebhookDeliveryRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time, attempts int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status='delivered', delivered_at=$2, attempts=$3, next_retry_at=NULL WHERE id=$1
	`, id, deliveredAt, attempts)
	return err
}

// MarkRetry records a failed attempt that will be retried at nextRetryAt.
func (r *WebhookDeliveryRepository) MarkRetry(ctx context.Context, id uuid.UUID, lastError string, attempts int, nextRetryAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status='pending', last_error=$2, attempts=$3, next_retry_at=$4 WHERE id=$1
	`, id, lastError, attempts, nextRetryAt)
	return err
}

// MarkFailed records the 5th and final failed attempt (§4.11).
func (r *WebhookDeliveryRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, attempts int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries SET status='failed', last_error=$2, attempts=$3, next_retry_at=NULL WHERE id=$1
	`, id, lastError, attempts)
	return err
}

// ListDue returns pending deliveries whose next_retry_at has passed, for
// the periodic sweeper (§4.11).
func (r *WebhookDeliveryRepository) ListDue(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM webhook_deliveries
		WHERE status='pending' AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WebhookDelivery
	for rows.Next() {
		d, err := scanWebhookDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
