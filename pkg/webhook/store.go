package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery is one persisted webhook attempt, surviving process restarts so
// the background task runner can resume draining it (base spec §2/§5).
type Delivery struct {
	ID            string
	MeetingID     string
	URL           string
	Secret        string
	Payload       Payload
	Attempts      int
	Delivered     bool
	LastError     string
	NextAttemptAt time.Time
}

// Store persists webhook deliveries in the webhook_deliveries table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated database pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records a new delivery in status pending, due immediately.
func (s *Store) Insert(ctx context.Context, meetingID, url string, payload Payload) (*Delivery, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, meeting_id, payload, url, attempts, delivered, created_at, next_attempt_at)
		VALUES ($1, $2, $3, $4, 0, false, $5, $5)`,
		id, meetingID, raw, url, now)
	if err != nil {
		return nil, fmt.Errorf("insert webhook delivery: %w", err)
	}
	return &Delivery{ID: id, MeetingID: meetingID, URL: url, Payload: payload, NextAttemptAt: now}, nil
}

// MarkDelivered records a successful attempt.
func (s *Store) MarkDelivered(ctx context.Context, id string, attempts int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET delivered = true, attempts = $2 WHERE id = $1`, id, attempts)
	return err
}

// MarkAttemptFailed records a failed attempt and schedules the next one.
func (s *Store) MarkAttemptFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET attempts = $2, last_error = $3, next_attempt_at = $4 WHERE id = $1`,
		id, attempts, lastError, nextAttemptAt)
	return err
}

// ListPending returns undelivered deliveries whose next_attempt_at has
// passed, for the background task runner to drain.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, url, payload, attempts, last_error, next_attempt_at
		FROM webhook_deliveries
		WHERE NOT delivered AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		var d Delivery
		var raw []byte
		if err := rows.Scan(&d.ID, &d.MeetingID, &d.URL, &raw, &d.Attempts, &d.LastError, &d.NextAttemptAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &d.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
