package repository

import (
	"context"
	"encoding/json"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository appends to and reads the email_events log (§3, §6).
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append inserts one event. The log is append-only: no update/delete
// method exists on this repository by design (invariant 2, §8).
func (r *EventRepository) Append(ctx context.Context, e *models.EmailEvent) error {
	data, _ := json.Marshal(e.Data)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_events (id, email_id, event_type, event_data, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, e.ID, e.EmailID, e.EventType, data, e.CreatedAt)
	return err
}

// ListByEmail returns every event for an email, ordered by createdAt.
// Events with equal createdAt are ordered by their random UUID id, which
// does not follow insertion order.
func (r *EventRepository) ListByEmail(ctx context.Context, emailID uuid.UUID) ([]models.EmailEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email_id, event_type, event_data, created_at
		FROM email_events WHERE email_id=$1 ORDER BY created_at ASC, id ASC
	`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EmailEvent
	for rows.Next() {
		var ev models.EmailEvent
		var data []byte
		if err := rows.Scan(&ev.ID, &ev.EmailID, &ev.EventType, &data, &ev.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(data, &ev.Data)
		out = append(out, ev)
	}
	return out, rows.Err()
}
