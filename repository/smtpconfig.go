package repository

import (
	"context"
	"errors"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SMTPConfigRepository persists per-app relay configurations (§3).
type SMTPConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSMTPConfigRepository constructs an SMTPConfigRepository.
func NewSMTPConfigRepository(pool *pgxpool.Pool) *SMTPConfigRepository {
	return &SMTPConfigRepository{pool: pool}
}

const smtpConfigColumns = `id, app_id, name, host, port, username, password, encryption, pool_size, timeout_ms, active, created_at, updated_at`

func scanSMTPConfig(row pgx.Row) (*models.SMTPConfig, error) {
	var c models.SMTPConfig
	err := row.Scan(&c.ID, &c.AppID, &c.Name, &c.Host, &c.Port, &c.Username, &c.Password,
		&c.Encryption, &c.PoolSize, &c.TimeoutMs, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

// Create inserts a new SMTP config.
func (r *SMTPConfigRepository) Create(ctx context.Context, c *models.SMTPConfig) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO smtp_configs (id, app_id, name, host, port, username, password, encryption, pool_size, timeout_ms, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, c.ID, c.AppID, c.Name, c.Host, c.Port, c.Username, c.Password, c.Encryption, c.PoolSize, c.TimeoutMs, c.Active, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetByID loads one config by id alone, without an app filter (the
// cross-tenant check, INVALID_SMTP_CONFIG, happens in the handler layer).
func (r *SMTPConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SMTPConfig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+smtpConfigColumns+` FROM smtp_configs WHERE id=$1`, id)
	c, err := scanSMTPConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetActiveForApp returns the app's active config, used as the fallback
// when a queue has no bound config (§4.2 step 6).
func (r *SMTPConfigRepository) GetActiveForApp(ctx context.Context, appID uuid.UUID) (*models.SMTPConfig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+smtpConfigColumns+` FROM smtp_configs WHERE app_id=$1 AND active=true ORDER BY created_at ASC LIMIT 1`, appID)
	c, err := scanSMTPConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// SetActive flips the active flag (§6 activate/deactivate).
func (r *SMTPConfigRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE smtp_configs SET active=$2, updated_at=now() WHERE id=$1`, id, active)
	return err
}

// List returns every SMTP config for an app.
func (r *SMTPConfigRepository) List(ctx context.Context, appID uuid.UUID) ([]models.SMTPConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+smtpConfigColumns+` FROM smtp_configs WHERE app_id=$1 ORDER BY created_at ASC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SMTPConfig
	for rows.Next() {
		c, err := scanSMTPConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
