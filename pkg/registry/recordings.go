package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vexa-ai/vexa/pkg/models"
)

// CreateRecording inserts a pending Recording row at worker start, per base
// spec §3 ("created at worker start").
func (r *Registry) CreateRecording(ctx context.Context, meetingID, sessionUID string, source models.RecordingSource) (*models.Recording, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recordings (id, meeting_id, session_uid, source, status, media_files, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '[]', $6, $6)`,
		id, meetingID, sessionUID, source, models.RecordingStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	return &models.Recording{
		ID: id, MeetingID: meetingID, SessionUID: sessionUID,
		Source: source, Status: models.RecordingStatusPending,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetRecording fetches a single recording by id.
func (r *Registry) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, session_uid, source, status, media_files, error_message, created_at, updated_at
		FROM recordings WHERE id = $1`, id)
	return scanRecording(row)
}

// ListRecordingsByMeeting returns every recording belonging to a meeting.
func (r *Registry) ListRecordingsByMeeting(ctx context.Context, meetingID string) ([]*models.Recording, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, meeting_id, session_uid, source, status, media_files, error_message, created_at, updated_at
		FROM recordings WHERE meeting_id = $1 ORDER BY created_at`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list recordings by meeting: %w", err)
	}
	defer rows.Close()

	var out []*models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CompleteRecording appends a finalized media file and marks the recording
// completed, per the worker's upload callback (base spec §6).
func (r *Registry) CompleteRecording(ctx context.Context, id string, file models.MediaFile) error {
	rec, err := r.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	mediaFiles := append(rec.MediaFiles, file)
	raw, err := json.Marshal(mediaFiles)
	if err != nil {
		return fmt.Errorf("marshal media files: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET status = $2, media_files = $3, updated_at = now() WHERE id = $1`,
		id, models.RecordingStatusCompleted, raw)
	if err != nil {
		return fmt.Errorf("complete recording: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailRecording records an upload failure without affecting meeting status,
// per base spec §7 ("recording is a best-effort side channel").
func (r *Registry) FailRecording(ctx context.Context, id, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET error_message = $2, updated_at = now() WHERE id = $1`, id, errMessage)
	return err
}

// DeleteRecording marks a recording deleted, part of meeting anonymization
// or a direct DELETE /recordings/{id} call.
func (r *Registry) DeleteRecording(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recordings SET status = $2, updated_at = now() WHERE id = $1`, id, models.RecordingStatusDeleted)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecording(row rowScanner) (*models.Recording, error) {
	var rec models.Recording
	var mediaJSON []byte
	if err := row.Scan(&rec.ID, &rec.MeetingID, &rec.SessionUID, &rec.Source, &rec.Status, &mediaJSON, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &rec.MediaFiles); err != nil {
			return nil, fmt.Errorf("unmarshal media files: %w", err)
		}
	}
	return &rec, nil
}
