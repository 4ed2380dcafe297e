package lifecycle

import "github.com/vexa-ai/vexa/pkg/models"

// exitOutcome is the terminal status a worker's reported exit reason maps
// to, per base spec §4.2's canonical exit-reason table. Worker-reported
// exits (Exit) resolve through MapExitReason — the single reducer named in
// base spec §9's redesign flag — instead of ad hoc exit-code handling
// scattered across callback senders; the timeout, force-fail and
// restart-reconciliation paths pass a fixed outcome to terminate directly.
type exitOutcome struct {
	status           models.MeetingStatus
	completionReason string
	failureStage     models.FailureStage
}

var exitReasonTable = map[string]exitOutcome{
	"self_initiated_leave":               {models.StatusCompleted, models.CompletionReasonStopped, ""},
	"self_initiated_leave_from_browser":  {models.StatusCompleted, models.CompletionReasonStopped, ""},
	"normal_completion":                  {models.StatusCompleted, models.CompletionReasonStopped, ""},
	"left_alone":                         {models.StatusCompleted, models.CompletionReasonLeftAlone, ""},
	"startup_alone_timeout":              {models.StatusCompleted, models.CompletionReasonLeftAlone, ""},
	"post_speaker_alone_timeout":         {models.StatusCompleted, models.CompletionReasonLeftAlone, ""},
	"admission_failed":                   {models.StatusFailed, "", models.FailureStageAdmission},
	"rejected":                           {models.StatusFailed, "", models.FailureStageAdmission},
	"platform_handler_exception":         {models.StatusFailed, "", models.FailureStagePlatform},
	"unknown_platform":                   {models.StatusFailed, "", models.FailureStagePlatform},
	"signal_sigterm":                     {models.StatusFailed, "", models.FailureStageSignal},
	"signal_sigint":                      {models.StatusFailed, "", models.FailureStageSignal},
}

// MapExitReason maps a worker-reported exit reason to its terminal status,
// completion reason, and failure stage. Unrecognized reasons are treated as
// a generic platform failure rather than silently dropped, since every
// exit callback must resolve to a terminal transition.
func MapExitReason(reason string) (status models.MeetingStatus, completionReason string, failureStage models.FailureStage) {
	if outcome, ok := exitReasonTable[reason]; ok {
		return outcome.status, outcome.completionReason, outcome.failureStage
	}
	return models.StatusFailed, "", models.FailureStagePlatform
}

// HeartbeatLostOutcome is the fixed outcome for a worker that goes
// unreachable past the watchdog window — not reported by the worker at
// all, so it's not in exitReasonTable, but still funnels through the same
// single-reducer contract.
func HeartbeatLostOutcome() (status models.MeetingStatus, completionReason string, failureStage models.FailureStage) {
	return models.StatusFailed, "", models.FailureStageHeartbeatLost
}
