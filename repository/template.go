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

// TemplateRepository persists reusable subject/body templates (SPEC_FULL.md
// §12).
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository constructs a TemplateRepository.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

const templateColumns = `id, app_id, name, subject, html, text, variables, created_at, updated_at`

func scanTemplate(row pgx.Row) (*models.Template, error) {
	var t models.Template
	var variables []byte
	err := row.Scan(&t.ID, &t.AppID, &t.Name, &t.Subject, &t.HTML, &t.Text, &variables, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(variables, &t.Variables)
	return &t, nil
}

// Create inserts a template; unique (app_id,name) violations surface as
// ErrDuplicateName.
func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	variables, _ := json.Marshal(t.Variables)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO templates (id, app_id, name, subject, html, text, variables, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, t.ID, t.AppID, t.Name, t.Subject, t.HTML, t.Text, variables, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

// GetByID loads a template scoped to its app.
func (r *TemplateRepository) GetByID(ctx context.Context, appID, id uuid.UUID) (*models.Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=$1 AND app_id=$2`, id, appID)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// Update overwrites a template's content.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	variables, _ := json.Marshal(t.Variables)
	ct, err := r.pool.Exec(ctx, `
		UPDATE templates SET subject=$3, html=$4, text=$5, variables=$6, updated_at=$7
		WHERE id=$1 AND app_id=$2
	`, t.ID, t.AppID, t.Subject, t.HTML, t.Text, variables, t.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a template.
func (r *TemplateRepository) Delete(ctx context.Context, appID, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM templates WHERE id=$1 AND app_id=$2`, id, appID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every template for an app.
func (r *TemplateRepository) List(ctx context.Context, appID uuid.UUID) ([]models.Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM templates WHERE app_id=$1 ORDER BY created_at ASC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
