package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CosminFerecatu/mail-queue-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepository persists API credentials (§3). Grounded on the
// reference APIKeyRepository's GenerateAPIKey/hash pattern, adapted to the
// spec's `mq_live_` prefix and scope set.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository constructs a CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// HashKey hashes a plaintext credential for storage/lookup. Stored form is
// one-way (§3 invariant); sha256 is adequate here because the input space
// is already a 256-bit random secret, not a human-chosen password.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateKey produces a fresh plaintext credential of the form
// `mq_live_<base64url>` (`mq_test_<base64url>` when sandbox is set) plus its
// 12-character prefix and hash.
func GenerateKey(sandbox bool) (plaintext, prefix, hash string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generate random bytes: %w", err)
	}
	env := "live"
	if sandbox {
		env = "test"
	}
	plaintext = "mq_" + env + "_" + base64.RawURLEncoding.EncodeToString(raw)
	if len(plaintext) < 12 {
		prefix = plaintext
	} else {
		prefix = plaintext[:12]
	}
	hash = HashKey(plaintext)
	return plaintext, prefix, hash, nil
}

// Create inserts a credential and returns the plaintext secret (emitted
// exactly once, per §3).
func (r *CredentialRepository) Create(ctx context.Context, c *models.APICredential, sandbox bool) (string, error) {
	plaintext, prefix, hash, err := GenerateKey(sandbox)
	if err != nil {
		return "", err
	}
	c.Prefix = prefix
	c.SecretHash = hash

	scopes, _ := json.Marshal(c.Scopes)
	ipAllow, _ := json.Marshal(c.IPAllowlist)
	_, err = r.pool.Exec(ctx, `
		INSERT INTO api_credentials (id, app_id, name, prefix, secret_hash, scopes, rate_limit, ip_allowlist, expires_at, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true,$10)
	`, c.ID, c.AppID, c.Name, c.Prefix, c.SecretHash, scopes, c.RateLimit, ipAllow, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

const credentialColumns = `id, app_id, name, prefix, secret_hash, scopes, rate_limit, ip_allowlist, expires_at, active, revoked_at, last_used_at, created_at`

func scanCredential(row pgx.Row) (*models.APICredential, error) {
	var c models.APICredential
	var scopes, ipAllow []byte
	err := row.Scan(&c.ID, &c.AppID, &c.Name, &c.Prefix, &c.SecretHash, &scopes, &c.RateLimit,
		&ipAllow, &c.ExpiresAt, &c.Active, &c.RevokedAt, &c.LastUsedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(scopes, &c.Scopes)
	_ = json.Unmarshal(ipAllow, &c.IPAllowlist)
	return &c, nil
}

// GetByHash looks up a credential by its hashed secret (hot path: middleware
// authentication).
func (r *CredentialRepository) GetByHash(ctx context.Context, hash string) (*models.APICredential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM api_credentials WHERE secret_hash=$1`, hash)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByID loads a credential scoped to its app.
func (r *CredentialRepository) GetByID(ctx context.Context, appID, id uuid.UUID) (*models.APICredential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM api_credentials WHERE id=$1 AND app_id=$2`, id, appID)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// UpdateLastUsed stamps the last-used timestamp, called asynchronously from
// the auth middleware's hot path.
func (r *CredentialRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_credentials SET last_used_at=now() WHERE id=$1`, id)
	return err
}

// Revoke marks a credential revoked (§3 lifecycle).
func (r *CredentialRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_credentials SET revoked_at=now(), active=false WHERE id=$1`, id)
	return err
}

// Rotate replaces a credential's secret, returning the new plaintext.
func (r *CredentialRepository) Rotate(ctx context.Context, id uuid.UUID, sandbox bool) (string, error) {
	plaintext, prefix, hash, err := GenerateKey(sandbox)
	if err != nil {
		return "", err
	}
	_, err = r.pool.Exec(ctx, `UPDATE api_credentials SET prefix=$2, secret_hash=$3 WHERE id=$1`, id, prefix, hash)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// Delete removes a credential permanently.
func (r *CredentialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM api_credentials WHERE id=$1`, id)
	return err
}
