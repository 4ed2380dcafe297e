package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vexa-ai/vexa/pkg/models"
)

// CreateUser provisions a new user and returns its freshly minted, opaque
// API key. The key itself is never persisted — only its SHA-256 hash is —
// so this is the only moment the caller can retrieve it.
func (r *Registry) CreateUser(ctx context.Context, displayName, email string, maxConcurrentBots int) (*models.User, string, error) {
	if maxConcurrentBots < 0 {
		return nil, "", NewValidationError("max_concurrent_bots", "must be non-negative")
	}
	apiKey, err := newAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	keyHash := hashAPIKey(apiKey)

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, max_concurrent_bots, api_key_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, displayName, email, maxConcurrentBots, keyHash, now)
	if err != nil {
		return nil, "", fmt.Errorf("insert user: %w", err)
	}

	return &models.User{
		ID:                id,
		DisplayName:       displayName,
		Email:             email,
		MaxConcurrentBots: maxConcurrentBots,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, apiKey, nil
}

// GetUser fetches a user by id.
func (r *Registry) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, max_concurrent_bots, webhook_url, webhook_secret, api_key_hash, created_at, updated_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByAPIKey resolves the bearer of an opaque API key, used by the
// control-plane's auth middleware on every request.
func (r *Registry) GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, max_concurrent_bots, webhook_url, webhook_secret, api_key_hash, created_at, updated_at
		FROM users WHERE api_key_hash = $1`, hashAPIKey(apiKey))
	return scanUser(row)
}

// UpdateUserWebhook sets or clears a user's webhook URL/secret.
func (r *Registry) UpdateUserWebhook(ctx context.Context, id, webhookURL, webhookSecret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET webhook_url = $2, webhook_secret = $3, updated_at = now() WHERE id = $1`,
		id, webhookURL, webhookSecret)
	if err != nil {
		return fmt.Errorf("update user webhook: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserConcurrency changes max_concurrent_bots for a user.
func (r *Registry) UpdateUserConcurrency(ctx context.Context, id string, maxConcurrentBots int) error {
	if maxConcurrentBots < 0 {
		return NewValidationError("max_concurrent_bots", "must be non-negative")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET max_concurrent_bots = $2, updated_at = now() WHERE id = $1`, id, maxConcurrentBots)
	if err != nil {
		return fmt.Errorf("update user concurrency: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every administered user, for the admin plane.
func (r *Registry) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, email, max_concurrent_bots, webhook_url, webhook_secret, api_key_hash, created_at, updated_at
		FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.MaxConcurrentBots, &u.WebhookURL, &u.WebhookSecret, &u.APIKeyHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "vx_" + hex.EncodeToString(buf), nil
}

func hashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
