package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SuppressionRepository persists the blocklist (§3, §4.4, §6). Grounded on
// the reference SuppressionService/Repository split, collapsed here to one
// type since the teacher's service layer added no logic beyond what maps
// directly to SQL. The empty-string "global" app id workaround from the
// source (§9 Open Question 3) is not carried over: AppID is a genuine
// nullable column and every check issues the explicit
// (app_id,address) OR (app_id IS NULL,address) lookup the spec requires.
type SuppressionRepository struct {
	pool *pgxpool.Pool
}

// NewSuppressionRepository constructs a SuppressionRepository.
func NewSuppressionRepository(pool *pgxpool.Pool) *SuppressionRepository {
	return &SuppressionRepository{pool: pool}
}

// Upsert adds or updates a suppression entry, honouring the reason
// precedence in §3: a reason only replaces an existing one if it outranks
// it, and the replacing entry's expiry overwrites the old one (a complaint
// carries no expiry, so it is always permanent).
func (r *SuppressionRepository) Upsert(ctx context.Context, s *models.Suppression) error {
	addr := models.NormalizeAddress(s.Address)

	existing, err := r.getRaw(ctx, s.AppID, addr)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil && !s.Reason.Outranks(existing.Reason) {
		return nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO suppression_list (id, app_id, email_address, reason, source_email_id, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (app_id, email_address) DO UPDATE SET
			reason = EXCLUDED.reason,
			source_email_id = EXCLUDED.source_email_id,
			expires_at = EXCLUDED.expires_at
	`, s.ID, s.AppID, addr, s.Reason, s.SourceEmailID, s.ExpiresAt, s.CreatedAt)
	return err
}

func (r *SuppressionRepository) getRaw(ctx context.Context, appID *uuid.UUID, addr string) (*models.Suppression, error) {
	var appIDClause string
	args := []any{addr}
	if appID == nil {
		appIDClause = "app_id IS NULL"
	} else {
		appIDClause = "app_id = $2"
		args = append(args, *appID)
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, app_id, email_address, reason, source_email_id, expires_at, created_at
		FROM suppression_list WHERE email_address=$1 AND `+appIDClause, args...)
	return scanSuppression(row)
}

func scanSuppression(row pgx.Row) (*models.Suppression, error) {
	var s models.Suppression
	err := row.Scan(&s.ID, &s.AppID, &s.Address, &s.Reason, &s.SourceEmailID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Check looks up suppression for (appID,address) ∪ (nil,address),
// filtering out entries whose expiry has passed (§4.1 step 3, §4.4).
func (r *SuppressionRepository) Check(ctx context.Context, appID uuid.UUID, address string) (*models.CheckSuppressionResult, error) {
	addr := models.NormalizeAddress(address)
	now := time.Now()

	rows, err := r.pool.Query(ctx, `
		SELECT reason, expires_at FROM suppression_list
		WHERE email_address=$1 AND (app_id=$2 OR app_id IS NULL)
		ORDER BY (app_id IS NULL) ASC
	`, addr, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var reason models.SuppressionReason
		var expiresAt *time.Time
		if err := rows.Scan(&reason, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt != nil && expiresAt.Before(now) {
			continue
		}
		return &models.CheckSuppressionResult{Address: addr, IsSuppressed: true, Reason: reason, ExpiresAt: expiresAt}, nil
	}
	return &models.CheckSuppressionResult{Address: addr, IsSuppressed: false}, rows.Err()
}

// CheckMany runs Check for every address, short-circuiting as soon as the
// caller cares (submission rejects the whole request on the first hit,
// §4.1 step 3); this returns every result so the caller can decide.
func (r *SuppressionRepository) CheckMany(ctx context.Context, appID uuid.UUID, addresses []string) ([]models.CheckSuppressionResult, error) {
	out := make([]models.CheckSuppressionResult, 0, len(addresses))
	for _, a := range addresses {
		res, err := r.Check(ctx, appID, a)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, nil
}

// Remove deletes a suppression for an explicit (appID-or-nil, address).
func (r *SuppressionRepository) Remove(ctx context.Context, appID *uuid.UUID, address string) error {
	addr := models.NormalizeAddress(address)
	var err error
	if appID == nil {
		_, err = r.pool.Exec(ctx, `DELETE FROM suppression_list WHERE app_id IS NULL AND email_address=$1`, addr)
	} else {
		_, err = r.pool.Exec(ctx, `DELETE FROM suppression_list WHERE app_id=$1 AND email_address=$2`, *appID, addr)
	}
	return err
}

// List returns suppressions for an app (global entries included), newest
// first.
func (r *SuppressionRepository) List(ctx context.Context, appID uuid.UUID, limit, offset int) ([]models.Suppression, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppression_list WHERE app_id=$1 OR app_id IS NULL`, appID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, app_id, email_address, reason, source_email_id, expires_at, created_at
		FROM suppression_list WHERE app_id=$1 OR app_id IS NULL
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
	`, appID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []models.Suppression
	for rows.Next() {
		s, err := scanSuppression(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

// DeleteExpired removes every entry whose expiry has passed, returning the
// count removed.
func (r *SuppressionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM suppression_list WHERE expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExportCSV renders every suppression for an app as the fixed-header CSV
// format in §6.
func (r *SuppressionRepository) ExportCSV(ctx context.Context, appID uuid.UUID) (string, error) {
	all, _, err := r.List(ctx, appID, 1_000_000, 0)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(models.CSVHeader + "\n")
	for _, s := range all {
		expires := ""
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.UTC().Format(time.RFC3339)
		}
		b.WriteString(s.Address + "," + string(s.Reason) + "," + expires + "," + s.CreatedAt.UTC().Format(time.RFC3339) + "\n")
	}
	return b.String(), nil
}
