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

// ScheduledJobRepository persists cron-driven template sends (§3, §4.12).
type ScheduledJobRepository struct {
	pool *pgxpool.Pool
}

// NewScheduledJobRepository constructs a ScheduledJobRepository.
func NewScheduledJobRepository(pool *pgxpool.Pool) *ScheduledJobRepository {
	return &ScheduledJobRepository{pool: pool}
}

const scheduledJobColumns = `id, app_id, queue_id, name, cron_expr, timezone, template_id, template_data, recipients, active, last_run_at, next_run_at, created_at, updated_at`

func scanScheduledJob(row pgx.Row) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var templateData, recipients []byte
	err := row.Scan(&j.ID, &j.AppID, &j.QueueID, &j.Name, &j.CronExpr, &j.Timezone, &j.TemplateID,
		&templateData, &recipients, &j.Active, &j.LastRunAt, &j.NextRunAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(templateData, &j.TemplateData)
	_ = json.Unmarshal(recipients, &j.To)
	return &j, nil
}

// Create inserts a scheduled job.
func (r *ScheduledJobRepository) Create(ctx context.Context, j *models.ScheduledJob) error {
	templateData, _ := json.Marshal(j.TemplateData)
	recipients, _ := json.Marshal(j.To)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, app_id, queue_id, name, cron_expr, timezone, template_id, template_data,
			recipients, active, last_run_at, next_run_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, j.ID, j.AppID, j.QueueID, j.Name, j.CronExpr, j.Timezone, j.TemplateID, templateData,
		recipients, j.Active, j.LastRunAt, j.NextRunAt, j.CreatedAt, j.UpdatedAt)
	return err
}

// GetByID loads a scheduled job scoped to its app.
func (r *ScheduledJobRepository) GetByID(ctx context.Context, appID, id uuid.UUID) (*models.ScheduledJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE id=$1 AND app_id=$2`, id, appID)
	j, err := scanScheduledJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// List returns every scheduled job for an app.
func (r *ScheduledJobRepository) List(ctx context.Context, appID uuid.UUID) ([]models.ScheduledJob, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE app_id=$1 ORDER BY created_at ASC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// Update replaces a job's definition, leaving the run bookkeeping columns
// to RecordRun except for next_run_at, which the caller recomputes whenever
// the cron expression or timezone changes.
func (r *ScheduledJobRepository) Update(ctx context.Context, j *models.ScheduledJob) error {
	templateData, _ := json.Marshal(j.TemplateData)
	recipients, _ := json.Marshal(j.To)
	ct, err := r.pool.Exec(ctx, `
		UPDATE scheduled_jobs SET queue_id=$3, name=$4, cron_expr=$5, timezone=$6, template_id=$7,
			template_data=$8, recipients=$9, active=$10, next_run_at=$11, updated_at=$12
		WHERE id=$1 AND app_id=$2
	`, j.ID, j.AppID, j.QueueID, j.Name, j.CronExpr, j.Timezone, j.TemplateID,
		templateData, recipients, j.Active, j.NextRunAt, j.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns every active job across all apps, polled by the cron
// scheduler (C11) on each tick.
func (r *ScheduledJobRepository) ListActive(ctx context.Context) ([]models.ScheduledJob, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE active=true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// SetActive toggles a job on/off.
func (r *ScheduledJobRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_jobs SET active=$2, updated_at=now() WHERE id=$1`, id, active)
	return err
}

// RecordRun stamps the last/next run times after a tick fires a job.
func (r *ScheduledJobRepository) RecordRun(ctx context.Context, id uuid.UUID, lastRun, nextRun *time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE scheduled_jobs SET last_run_at=$2, next_run_at=$3, updated_at=now() WHERE id=$1`, id, lastRun, nextRun)
	return err
}

// Delete removes a scheduled job.
func (r *ScheduledJobRepository) Delete(ctx context.Context, appID, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id=$1 AND app_id=$2`, id, appID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
