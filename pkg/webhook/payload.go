package webhook

import "time"

// Payload is delivered as the JSON body of every terminal-transition POST.
// It never carries the owner's webhook_secret — that's sent only via the
// Authorization header.
type Payload struct {
	MeetingID        string    `json:"meeting_id"`
	Platform         string    `json:"platform"`
	NativeMeetingID  string    `json:"native_meeting_id,omitempty"`
	Status           string    `json:"status"`
	CompletionReason string    `json:"completion_reason,omitempty"`
	FailureStage     string    `json:"failure_stage,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
}
