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

// EmailRepository persists Email rows (§3, §6 emails table). Grounded on
// the reference MessageRepository's raw-SQL Scan pattern, restructured to
// the spec's column set and optimistic status-guarded updates (§5).
type EmailRepository struct {
	pool *pgxpool.Pool
}

// NewEmailRepository constructs an EmailRepository.
func NewEmailRepository(pool *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{pool: pool}
}

// Create inserts a new email row plus its initial event in a single
// transaction, so both persist atomically (§4.1 step 4).
func (r *EmailRepository) Create(ctx context.Context, e *models.Email, initialEvent *models.EmailEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	to, _ := json.Marshal(e.To)
	cc, _ := json.Marshal(e.CC)
	bcc, _ := json.Marshal(e.BCC)
	headers, _ := json.Marshal(e.Headers)
	personalization, _ := json.Marshal(e.Personalization)
	metadata, _ := json.Marshal(e.Metadata)
	from, _ := json.Marshal(e.From)
	var replyTo []byte
	if e.ReplyTo != nil {
		replyTo, _ = json.Marshal(e.ReplyTo)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO emails (
			id, app_id, queue_id, idempotency_key, message_id, from_address, to_addresses,
			cc_addresses, bcc_addresses, reply_to, subject, html_body, text_body, headers,
			personalization, metadata, status, retry_count, last_error, scheduled_at,
			sent_at, delivered_at, created_at
		) VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`,
		e.ID, e.AppID, e.QueueID, e.IdempotencyKey, e.MessageID, from, to, cc, bcc, replyTo,
		e.Subject, e.HTML, e.Text, headers, personalization, metadata, e.Status, e.RetryCount,
		e.LastError, e.ScheduledAt, e.SentAt, e.DeliveredAt, e.CreatedAt,
	)
	if err != nil {
		return err
	}

	data, _ := json.Marshal(initialEvent.Data)
	_, err = tx.Exec(ctx, `
		INSERT INTO email_events (id, email_id, event_type, event_data, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, initialEvent.ID, initialEvent.EmailID, initialEvent.EventType, data, initialEvent.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const emailColumns = `id, app_id, queue_id, COALESCE(idempotency_key,''), COALESCE(message_id,''), from_address,
	to_addresses, cc_addresses, bcc_addresses, reply_to, subject, html_body, text_body, headers,
	personalization, metadata, status, retry_count, COALESCE(last_error,''), scheduled_at,
	sent_at, delivered_at, created_at`

func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	var from, to, cc, bcc, headers, personalization, metadata []byte
	var replyTo []byte
	err := row.Scan(
		&e.ID, &e.AppID, &e.QueueID, &e.IdempotencyKey, &e.MessageID, &from,
		&to, &cc, &bcc, &replyTo, &e.Subject, &e.HTML, &e.Text, &headers,
		&personalization, &metadata, &e.Status, &e.RetryCount, &e.LastError, &e.ScheduledAt,
		&e.SentAt, &e.DeliveredAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(from, &e.From)
	_ = json.Unmarshal(to, &e.To)
	_ = json.Unmarshal(cc, &e.CC)
	_ = json.Unmarshal(bcc, &e.BCC)
	_ = json.Unmarshal(headers, &e.Headers)
	_ = json.Unmarshal(personalization, &e.Personalization)
	_ = json.Unmarshal(metadata, &e.Metadata)
	if len(replyTo) > 0 {
		e.ReplyTo = &models.Address{}
		_ = json.Unmarshal(replyTo, e.ReplyTo)
	}
	return &e, nil
}

// GetByID loads one email by id, scoped to its app.
func (r *EmailRepository) GetByID(ctx context.Context, appID, id uuid.UUID) (*models.Email, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+emailColumns+` FROM emails WHERE id=$1 AND app_id=$2`, id, appID)
	e, err := scanEmail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AppIDOf resolves an email's owning app without loading the full row,
// used by the tracking lane where the job only carries an email id.
func (r *EmailRepository) AppIDOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var appID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT app_id FROM emails WHERE id=$1`, id).Scan(&appID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.UUID{}, ErrNotFound
	}
	return appID, err
}

// GetByIdempotencyKey implements the §4.1 idempotency lookup.
func (r *EmailRepository) GetByIdempotencyKey(ctx context.Context, appID uuid.UUID, key string) (*models.Email, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+emailColumns+` FROM emails WHERE app_id=$1 AND idempotency_key=$2`, appID, key)
	e, err := scanEmail(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CompareAndSwapStatus implements the §5 optimistic-concurrency guard: the
// update only applies `WHERE status IN (expected...)`; a losing writer sees
// zero rows affected and the caller silently no-ops.
func (r *EmailRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expected []models.EmailStatus, next models.EmailStatus, extra map[string]any) (bool, error) {
	set := "status=$1"
	args := []any{next, id}
	idx := 3
	if v, ok := extra["lastError"]; ok {
		set += ", last_error=$" + itoa(idx)
		args = append(args, v)
		idx++
	}
	if v, ok := extra["retryCount"]; ok {
		set += ", retry_count=$" + itoa(idx)
		args = append(args, v)
		idx++
	}
	if v, ok := extra["sentAt"]; ok {
		set += ", sent_at=$" + itoa(idx)
		args = append(args, v)
		idx++
	}
	if v, ok := extra["deliveredAt"]; ok {
		set += ", delivered_at=$" + itoa(idx)
		args = append(args, v)
		idx++
	}
	if v, ok := extra["messageId"]; ok {
		set += ", message_id=$" + itoa(idx)
		args = append(args, v)
		idx++
	}
	if v, ok := extra["scheduledAt"]; ok {
		set += ", scheduled_at=$" + itoa(idx)
		args = append(args, v)
		idx++
	}

	statusList := "$" + itoa(idx)
	args = append(args, expected)
	query := `UPDATE emails SET ` + set + ` WHERE id=$2 AND status = ANY(` + statusList + `)`
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns emails for an app, newest first, optionally filtered by
// queue/status (§6, Open Question 2: offset and cursor are interchangeable
// orderings by created_at DESC, id DESC).
func (r *EmailRepository) List(ctx context.Context, q *models.EmailQuery) ([]models.Email, int, error) {
	base := `FROM emails WHERE app_id=$1`
	args := []any{q.AppID}
	idx := 2
	if q.QueueID != nil {
		base += ` AND queue_id=$` + itoa(idx)
		args = append(args, *q.QueueID)
		idx++
	}
	if q.Status != nil {
		base += ` AND status=$` + itoa(idx)
		args = append(args, *q.Status)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + emailColumns + ` ` + base + ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(idx) + ` OFFSET $` + itoa(idx+1)
	args = append(args, limit, q.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// FindDueForReconciliation selects queued and processing emails whose scheduled_at has
// passed and that are older than `olderThan`, for the broker-recovery
// sweep (§9 Open Question 1, §7 startup sweep). The broker-job-missing
// check itself happens in the broker/worker layer; this returns the
// candidate set.
func (r *EmailRepository) FindDueForReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]models.Email, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+emailColumns+` FROM emails
		WHERE status IN ('queued','processing') AND created_at < $1 AND (scheduled_at IS NULL OR scheduled_at <= now())
		ORDER BY created_at ASC LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
