package api

import "github.com/vexa-ai/vexa/pkg/models"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string      `json:"status"`
	Version  string      `json:"version"`
	Database interface{} `json:"database"`
	Bus      string      `json:"bus"`
}

// DispatchBotResponse is returned by a successful POST /bots.
type DispatchBotResponse struct {
	ID     string               `json:"id"`
	Status models.MeetingStatus `json:"status"`
}

// ConflictResponse is returned on a 409 from POST /bots, carrying the
// existing meeting's id so the caller can poll it instead of retrying
// blind, per SPEC_FULL.md §8.
type ConflictResponse struct {
	Error           string `json:"error"`
	ExistingMeeting string `json:"existing_meeting_id"`
}

// CreateUserResponse is returned by POST /admin/users. APIKey is present
// only on this one response — it is never retrievable again.
type CreateUserResponse struct {
	User   *models.User `json:"user"`
	APIKey string       `json:"api_key"`
}

// ShareTranscriptResponse is returned by POST /transcripts/.../share.
type ShareTranscriptResponse struct {
	ShareToken string `json:"share_token"`
}
