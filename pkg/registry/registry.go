// Package registry implements the Meeting Registry: the single writer of
// Meeting rows and the sole synchronization point for state-machine
// correctness, per base spec §4.1 and §5.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vexa-ai/vexa/pkg/models"
)

// Registry is the authoritative store of Meeting rows. All methods are
// safe for concurrent use; correctness comes from conditional SQL updates,
// not from an in-process lock.
type Registry struct {
	db *sql.DB
}

// New constructs a Registry over an already-migrated database pool.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// CreateRequest atomically validates, enforces the uniqueness and
// concurrency invariants, and inserts a new Meeting row in status
// requested. It mirrors the teacher's CreateSession: a single transaction
// that counts first, then inserts, relying on a partial unique index as
// the final race-proof backstop.
func (r *Registry) CreateRequest(ctx context.Context, owner string, platform models.Platform, nativeID, passcode string, cfg models.MeetingConfig) (*models.Meeting, error) {
	if err := ValidateNativeMeetingID(platform, nativeID, passcode); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxConcurrent int
	if err := tx.QueryRowContext(ctx, `SELECT max_concurrent_bots FROM users WHERE id = $1`, owner).Scan(&maxConcurrent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load owner: %w", err)
	}

	var activeCount int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM meetings
		WHERE owner = $1 AND status NOT IN ('completed', 'failed')`, owner).Scan(&activeCount)
	if err != nil {
		return nil, fmt.Errorf("count active meetings: %w", err)
	}
	if activeCount >= maxConcurrent {
		return nil, ErrConcurrencyLimit
	}

	id := uuid.NewString()
	sessionUID := uuid.NewString()
	now := time.Now().UTC()
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meetings (id, owner, platform, native_meeting_id, config, status, session_uid, created_at, updated_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, '{}')`,
		id, owner, platform, nativeID, configJSON, models.StatusRequested, sessionUID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert meeting: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &models.Meeting{
		ID:              id,
		Owner:           owner,
		Platform:        platform,
		NativeMeetingID: &nativeID,
		Config:          cfg,
		Status:          models.StatusRequested,
		SessionUID:      sessionUID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Data:            json.RawMessage(`{}`),
	}, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the direct analog of the teacher's ent.IsConstraintError.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// TransitionPatch carries the optional field updates bundled with a
// transition, per base spec's transition(meeting_id, from_set, to, patch).
type TransitionPatch struct {
	WorkerRef        *string
	StartTime        *time.Time
	EndTime          *time.Time
	CompletionReason string
	FailureStage     models.FailureStage
	ErrorMessage     string
	Config           *models.MeetingConfig
}

// Transition performs the conditional write that serializes racing
// callbacks: it succeeds only if the meeting's current status is a member
// of fromSet.
func (r *Registry) Transition(ctx context.Context, meetingID string, fromSet []models.MeetingStatus, to models.MeetingStatus, patch TransitionPatch) (*models.Meeting, error) {
	if len(fromSet) == 0 {
		return nil, fmt.Errorf("fromSet must not be empty")
	}

	statusList := make([]string, len(fromSet))
	for i, s := range fromSet {
		statusList[i] = string(s)
	}

	setClauses := []string{"status = $2", "updated_at = now()"}
	argIdx := 3
	args := []any{meetingID, to}

	if patch.WorkerRef != nil {
		setClauses = append(setClauses, fmt.Sprintf("worker_ref = $%d", argIdx))
		args = append(args, *patch.WorkerRef)
		argIdx++
	}
	if patch.StartTime != nil {
		setClauses = append(setClauses, fmt.Sprintf("start_time = $%d", argIdx))
		args = append(args, *patch.StartTime)
		argIdx++
	}
	if patch.EndTime != nil {
		setClauses = append(setClauses, fmt.Sprintf("end_time = $%d", argIdx))
		args = append(args, *patch.EndTime)
		argIdx++
	}
	if patch.CompletionReason != "" {
		setClauses = append(setClauses, fmt.Sprintf("completion_reason = $%d", argIdx))
		args = append(args, patch.CompletionReason)
		argIdx++
	}
	if patch.FailureStage != "" {
		setClauses = append(setClauses, fmt.Sprintf("failure_stage = $%d", argIdx))
		args = append(args, patch.FailureStage)
		argIdx++
	}
	if patch.ErrorMessage != "" {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", argIdx))
		args = append(args, patch.ErrorMessage)
		argIdx++
	}
	if patch.Config != nil {
		configJSON, err := json.Marshal(patch.Config)
		if err != nil {
			return nil, fmt.Errorf("marshal config patch: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("config = $%d", argIdx))
		args = append(args, configJSON)
		argIdx++
	}

	query := "UPDATE meetings SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += fmt.Sprintf(" WHERE id = $1 AND status = ANY($%d)", argIdx)
	args = append(args, statusList)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish "doesn't exist" from "wrong status" for callers that care.
		if _, getErr := r.Get(ctx, meetingID); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}

	return r.Get(ctx, meetingID)
}

// AttachWorker idempotently records the worker handle for a meeting.
func (r *Registry) AttachWorker(ctx context.Context, meetingID, workerRef string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE meetings SET worker_ref = $2, updated_at = now() WHERE id = $1`, meetingID, workerRef)
	if err != nil {
		return fmt.Errorf("attach worker: %w", err)
	}
	return nil
}

// DetachWorker idempotently clears the worker handle for a meeting.
func (r *Registry) DetachWorker(ctx context.Context, meetingID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE meetings SET worker_ref = NULL, updated_at = now() WHERE id = $1`, meetingID)
	if err != nil {
		return fmt.Errorf("detach worker: %w", err)
	}
	return nil
}

// Anonymize nulls native_meeting_id, empties the data bag, and deletes
// transcript and recording rows for the meeting, all within one
// transaction. Idempotent: repeated calls are no-ops.
func (r *Registry) Anonymize(ctx context.Context, meetingID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM meetings WHERE id = $1`, meetingID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("check meeting exists: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segments WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("delete transcript segments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recordings WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("delete recordings: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE meetings SET native_meeting_id = NULL, data = '{}', updated_at = now() WHERE id = $1`, meetingID)
	if err != nil {
		return fmt.Errorf("scrub meeting: %w", err)
	}

	return tx.Commit()
}

// UpdateData merges patch into a meeting's open data bag (PATCH /meetings),
// per base spec §3's "open key/value bag for user-supplied metadata."
func (r *Registry) UpdateData(ctx context.Context, meetingID string, patch map[string]any) (*models.Meeting, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal data patch: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE meetings SET data = data || $2::jsonb, updated_at = now() WHERE id = $1`, meetingID, raw)
	if err != nil {
		return nil, fmt.Errorf("update meeting data: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, meetingID)
}

// Get fetches a single meeting by id.
func (r *Registry) Get(ctx context.Context, meetingID string) (*models.Meeting, error) {
	row := r.db.QueryRowContext(ctx, selectMeetingColumns+` FROM meetings WHERE id = $1`, meetingID)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListActiveByOwner returns all non-terminal meetings owned by owner.
func (r *Registry) ListActiveByOwner(ctx context.Context, owner string) ([]*models.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE owner = $1 AND status NOT IN ('completed', 'failed') ORDER BY created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("list active by owner: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// ListByOwner returns every meeting owned by owner, terminal or not, for
// GET /meetings.
func (r *Registry) ListByOwner(ctx context.Context, owner string) ([]*models.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE owner = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// ListByPlatformNative supports self-healing lookups: find meetings by
// their platform-facing identity regardless of owner.
func (r *Registry) ListByPlatformNative(ctx context.Context, platform models.Platform, nativeID string) ([]*models.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE platform = $1 AND native_meeting_id = $2 ORDER BY created_at`, platform, nativeID)
	if err != nil {
		return nil, fmt.Errorf("list by platform/native: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// GetByOwnerPlatformNative finds the caller's meeting for a (platform,
// native_id) pair, used by DELETE/PUT/PATCH endpoints keyed off those
// values instead of the internal id.
func (r *Registry) GetByOwnerPlatformNative(ctx context.Context, owner string, platform models.Platform, nativeID string) (*models.Meeting, error) {
	row := r.db.QueryRowContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE owner = $1 AND platform = $2 AND native_meeting_id = $3
		ORDER BY created_at DESC LIMIT 1`, owner, platform, nativeID)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListOrphanCandidates returns meetings in a non-terminal status whose
// worker_ref is set, for the background orphan-worker reaper to
// cross-reference against the orchestrator's live worker list.
func (r *Registry) ListOrphanCandidates(ctx context.Context) ([]*models.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE status NOT IN ('completed', 'failed') AND worker_ref IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list orphan candidates: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// ListStuckRequests returns meetings stuck in requested/joining past
// olderThan, for the background stuck-request reaper.
func (r *Registry) ListStuckRequests(ctx context.Context, olderThan time.Time) ([]*models.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE status IN ('requested', 'joining') AND created_at < $1`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck requests: %w", err)
	}
	defer rows.Close()
	return scanMeetings(rows)
}

// RecordCallbackReceipt inserts a dedup row for (connection_id, status),
// reporting false if the pair was already recorded (i.e. the callback is a
// duplicate delivery and should be treated as a no-op).
func (r *Registry) RecordCallbackReceipt(ctx context.Context, connectionID, status string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO callback_receipts (connection_id, status) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, connectionID, status)
	if err != nil {
		return false, fmt.Errorf("record callback receipt: %w", err)
	}
	// ON CONFLICT DO NOTHING inserts no row for a duplicate, so RowsAffected
	// is 0 then; the recount confirms the receipt row is present.
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("callback receipt rows affected: %w", err)
	}
	var count int
	if err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM callback_receipts WHERE connection_id = $1 AND status = $2`, connectionID, status).Scan(&count); err != nil {
		return false, fmt.Errorf("check callback receipt: %w", err)
	}
	return inserted == 1 && count == 1, nil
}

const selectMeetingColumns = `SELECT id, owner, platform, native_meeting_id, config, status, worker_ref, session_uid,
	start_time, end_time, created_at, updated_at, data, completion_reason, failure_stage, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (*models.Meeting, error) {
	var m models.Meeting
	var configJSON []byte
	var dataJSON []byte
	if err := row.Scan(
		&m.ID, &m.Owner, &m.Platform, &m.NativeMeetingID, &configJSON, &m.Status, &m.WorkerRef, &m.SessionUID,
		&m.StartTime, &m.EndTime, &m.CreatedAt, &m.UpdatedAt, &dataJSON, &m.CompletionReason, &m.FailureStage, &m.ErrorMessage,
	); err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &m.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	m.Data = dataJSON
	return &m, nil
}

func scanMeetings(rows *sql.Rows) ([]*models.Meeting, error) {
	var out []*models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
