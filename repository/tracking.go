package repository

import (
	"context"
	"errors"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackingLinkRepository persists short-code redirects (§3, §4.5).
type TrackingLinkRepository struct {
	pool *pgxpool.Pool
}

// NewTrackingLinkRepository constructs a TrackingLinkRepository.
func NewTrackingLinkRepository(pool *pgxpool.Pool) *TrackingLinkRepository {
	return &TrackingLinkRepository{pool: pool}
}

// ErrCodeTaken is returned by Create when the short code already exists;
// callers re-roll up to the retry cap in §4.5.
var ErrCodeTaken = errors.New("short code already in use")

// Create inserts a tracking link, translating a unique-violation on
// short_code to ErrCodeTaken.
func (r *TrackingLinkRepository) Create(ctx context.Context, l *models.TrackingLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracking_links (id, email_id, short_code, original_url, click_count, created_at)
		VALUES ($1,$2,$3,$4,0,$5)
	`, l.ID, l.EmailID, l.ShortCode, l.OriginalURL, l.CreatedAt)
	if isUniqueViolation(err) {
		return ErrCodeTaken
	}
	return err
}

// GetByCode loads a link by its short code for redirect resolution.
func (r *TrackingLinkRepository) GetByCode(ctx context.Context, code string) (*models.TrackingLink, error) {
	var l models.TrackingLink
	err := r.pool.QueryRow(ctx, `
		SELECT id, email_id, short_code, original_url, click_count, created_at
		FROM tracking_links WHERE short_code=$1
	`, code).Scan(&l.ID, &l.EmailID, &l.ShortCode, &l.OriginalURL, &l.ClickCount, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// IncrementClick bumps the click counter for a link.
func (r *TrackingLinkRepository) IncrementClick(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE tracking_links SET click_count = click_count + 1 WHERE id=$1`, id)
	return err
}

// isUniqueViolation detects a Postgres unique-constraint error (SQLSTATE
// 23505) without importing pgconn directly in callers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	if errors.As(err, &s) {
		return s.SQLState() == "23505"
	}
	return false
}
