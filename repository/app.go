package repository

import (
	"context"
	"errors"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AppRepository is a read path onto the tenant table. Apps are provisioned
// by the surrounding account system, out of scope here (§3), so there is
// deliberately no Create/Update/Delete.
type AppRepository struct {
	pool *pgxpool.Pool
}

// NewAppRepository constructs an AppRepository.
func NewAppRepository(pool *pgxpool.Pool) *AppRepository {
	return &AppRepository{pool: pool}
}

const appColumns = `id, name, sandbox, active, webhook_url, webhook_secret, daily_limit, monthly_limit, created_at`

func scanApp(row pgx.Row) (*models.App, error) {
	var a models.App
	var webhookURL *string
	err := row.Scan(&a.ID, &a.Name, &a.Sandbox, &a.Active, &webhookURL, &a.WebhookSecret,
		&a.DailyLimit, &a.MonthlyLimit, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if webhookURL != nil {
		a.WebhookURL = *webhookURL
	}
	return &a, nil
}

// GetByID loads an app by id.
func (r *AppRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.App, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE id=$1`, id)
	a, err := scanApp(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}
