package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vexa-ai/vexa/pkg/models"
)

// ListTranscriptSegments returns every segment for a meeting in offset
// order. The control plane never writes these rows — only the
// transcription sink does — per base spec §3: "produced by the
// transcription sink, not by the core; the core owns only its deletion."
func (r *Registry) ListTranscriptSegments(ctx context.Context, meetingID string) ([]models.TranscriptSegment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT meeting_id, session_uid, start_offset_ms, end_offset_ms, speaker, text, created_at
		FROM transcript_segments WHERE meeting_id = $1 ORDER BY start_offset_ms`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list transcript segments: %w", err)
	}
	defer rows.Close()

	var out []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		if err := rows.Scan(&seg.MeetingID, &seg.SessionUID, &seg.StartOffsetMs, &seg.EndOffsetMs, &seg.Speaker, &seg.Text, &seg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// SetShareToken stashes an opaque share token for a meeting's transcript in
// its data bag, the simplest storage that satisfies "GET|POST
// /transcripts/.../share" without a dedicated table the base data model
// never names. There is no dedicated clearing function: Anonymize drops it
// along with the rest of the data bag by overwriting it to '{}'.
func (r *Registry) SetShareToken(ctx context.Context, meetingID, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE meetings SET data = jsonb_set(data, '{share_token}', to_jsonb($2::text)), updated_at = now()
		WHERE id = $1`, meetingID, token)
	if err != nil {
		return fmt.Errorf("set share token: %w", err)
	}
	return nil
}

// GetByShareToken finds the meeting a share token was issued for, used by
// the unauthenticated share-link read path.
func (r *Registry) GetByShareToken(ctx context.Context, token string) (*models.Meeting, error) {
	row := r.db.QueryRowContext(ctx, selectMeetingColumns+`
		FROM meetings WHERE data->>'share_token' = $1`, token)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}
