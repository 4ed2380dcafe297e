// Package lifecycle implements the Bot Lifecycle Manager: the per-meeting
// state machine that consumes client requests, worker status callbacks,
// removal signals, and timeouts, and translates them into Registry
// transitions and side effects, per base spec §4.2.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vexa-ai/vexa/pkg/bus"
	"github.com/vexa-ai/vexa/pkg/config"
	"github.com/vexa-ai/vexa/pkg/models"
	"github.com/vexa-ai/vexa/pkg/orchestrator"
	"github.com/vexa-ai/vexa/pkg/registry"
	"github.com/vexa-ai/vexa/pkg/webhook"
)

// TransitionPatch re-exports registry.TransitionPatch so callers of this
// package don't need to name pkg/registry directly. It's a true alias (not
// a redeclaration), so *registry.Registry's Transition method satisfies the
// Store interface below without any adapter.
type TransitionPatch = registry.TransitionPatch

// CommandPublisher is the bus capability the Lifecycle Manager needs.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd bus.Command) error
}

// WebhookNotifier is the webhook capability the Lifecycle Manager needs.
type WebhookNotifier interface {
	Dispatch(ctx context.Context, meetingID, url string, payload webhook.Payload) error
}

// Store is the subset of *registry.Registry the Lifecycle Manager needs,
// narrowed the way the teacher's queue.SessionRegistry narrows WorkerPool
// down to what a single Worker needs.
type Store interface {
	Transition(ctx context.Context, meetingID string, fromSet []models.MeetingStatus, to models.MeetingStatus, patch TransitionPatch) (*models.Meeting, error)
	CreateRequest(ctx context.Context, owner string, platform models.Platform, nativeID, passcode string, cfg models.MeetingConfig) (*models.Meeting, error)
	AttachWorker(ctx context.Context, meetingID, workerRef string) error
	DetachWorker(ctx context.Context, meetingID string) error
	Get(ctx context.Context, meetingID string) (*models.Meeting, error)
	ListActiveByOwner(ctx context.Context, owner string) ([]*models.Meeting, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

var nonTerminalStatuses = []models.MeetingStatus{
	models.StatusRequested, models.StatusJoining, models.StatusAwaitingAdmission,
	models.StatusActive, models.StatusCompleting,
}

// Manager owns the per-meeting state machine. One Manager instance handles
// every meeting in the process; per-meeting state lives in the timers map,
// not in separate goroutines per meeting, so teardown is just a map delete.
type Manager struct {
	store        Store
	orchestrator orchestrator.Orchestrator
	bus          CommandPublisher
	webhooks     WebhookNotifier
	timeouts     config.Timeouts
	logger       *slog.Logger

	mu     sync.Mutex
	timers map[string]*timerSet
}

// New constructs a Manager.
func New(store Store, orch orchestrator.Orchestrator, commandBus CommandPublisher, webhooks WebhookNotifier, timeouts config.Timeouts) *Manager {
	return &Manager{
		store:        store,
		orchestrator: orch,
		bus:          commandBus,
		webhooks:     webhooks,
		timeouts:     timeouts,
		logger:       slog.Default().With("component", "lifecycle"),
		timers:       make(map[string]*timerSet),
	}
}

func (m *Manager) timersFor(meetingID string) *timerSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[meetingID]
	if !ok {
		t = newTimerSet()
		m.timers[meetingID] = t
	}
	return t
}

func (m *Manager) dropTimers(meetingID string) {
	m.mu.Lock()
	t, ok := m.timers[meetingID]
	delete(m.timers, meetingID)
	m.mu.Unlock()
	if ok {
		t.cancelAll()
	}
}

// Dispatch handles a client's POST /bots: create the Registry row, ask the
// Worker Orchestrator to start a worker bounded by SpawnDeadline, and
// transition requested->joining on success or requested->failed(spawn) on
// failure.
func (m *Manager) Dispatch(ctx context.Context, owner string, platform models.Platform, nativeID, passcode string, cfg models.MeetingConfig, callbackBaseURL, commandBusEndpoint, transcriptionURL, transcriptionToken, whisperModelSize string) (*models.Meeting, error) {
	meeting, err := m.store.CreateRequest(ctx, owner, platform, nativeID, passcode, cfg)
	if err != nil {
		return nil, err
	}

	spawnCtx, cancel := context.WithTimeout(ctx, m.timeouts.SpawnDeadline)
	defer cancel()

	workerRef, startErr := m.orchestrator.Start(spawnCtx, orchestrator.StartParams{
		MeetingID:          meeting.ID,
		Config:             cfg,
		Platform:           platform,
		NativeMeetingID:    nativeID,
		CallbackURL:        fmt.Sprintf("%s/%s", callbackBaseURL, meeting.ID),
		CommandBusEndpoint: commandBusEndpoint,
		TranscriptionURL:   transcriptionURL,
		TranscriptionToken: transcriptionToken,
		WhisperModelSize:   whisperModelSize,
		MeetingToken:       meeting.SessionUID,
	})
	if startErr != nil {
		failed, _ := m.store.Transition(ctx, meeting.ID, []models.MeetingStatus{models.StatusRequested}, models.StatusFailed, TransitionPatch{
			FailureStage: models.FailureStageSpawn,
			ErrorMessage: startErr.Error(),
		})
		if failed != nil {
			return failed, fmt.Errorf("start worker: %w", startErr)
		}
		return nil, fmt.Errorf("start worker: %w", startErr)
	}

	if err := m.store.AttachWorker(ctx, meeting.ID, workerRef); err != nil {
		m.logger.Error("failed to attach worker after successful start", "meeting_id", meeting.ID, "error", err)
	}

	return m.store.Transition(ctx, meeting.ID, []models.MeetingStatus{models.StatusRequested}, models.StatusJoining, TransitionPatch{})
}

// JoiningAck handles the worker's joining_ack callback. It tolerates both
// requested and joining as starting states so that a dispatch/joining_ack
// race never leaves the meeting stuck: the Registry's conditional update
// is what actually serializes the race (base spec §4.2's ordering
// guarantee).
func (m *Manager) JoiningAck(ctx context.Context, meetingID string) error {
	_, err := m.store.Transition(ctx, meetingID, []models.MeetingStatus{models.StatusRequested, models.StatusJoining}, models.StatusJoining, TransitionPatch{})
	return err
}

// AwaitingAdmission handles the worker's awaiting_admission callback: it
// transitions the meeting and starts the admission timeout, then re-checks
// the owner's concurrency ceiling (base spec §4.2).
func (m *Manager) AwaitingAdmission(ctx context.Context, meetingID string) error {
	meeting, err := m.store.Transition(ctx, meetingID, []models.MeetingStatus{models.StatusJoining}, models.StatusAwaitingAdmission, TransitionPatch{})
	if err != nil {
		return err
	}

	m.timersFor(meetingID).startAdmission(m.timeouts.AdmissionTimeout, func() {
		m.onAdmissionTimeout(context.Background(), meetingID)
	})

	return m.recheckConcurrency(ctx, meeting)
}

// recheckConcurrency implements base spec §4.2's concurrency re-check: if a
// race let two dispatches both pass the initial ceiling check, the later
// admission loses.
func (m *Manager) recheckConcurrency(ctx context.Context, meeting *models.Meeting) error {
	owner, err := m.store.GetUser(ctx, meeting.Owner)
	if err != nil {
		m.logger.Warn("failed to load owner concurrency ceiling for recheck", "meeting_id", meeting.ID, "error", err)
		return nil
	}
	maxConcurrent := owner.MaxConcurrentBots

	active, err := m.store.ListActiveByOwner(ctx, meeting.Owner)
	if err != nil {
		m.logger.Warn("failed to list active meetings for concurrency recheck", "meeting_id", meeting.ID, "error", err)
		return nil
	}
	if len(active) <= maxConcurrent {
		return nil
	}

	// The loser is whichever non-terminal meeting was created most recently;
	// ListActiveByOwner is ordered by created_at ascending, so the overflow
	// entries are the tail.
	loserIdx := len(active) - 1
	if active[loserIdx].ID != meeting.ID {
		return nil // this dispatch isn't the overflow one; nothing to do here
	}

	if err := m.bus.PublishCommand(ctx, mustCommand(bus.ActionLeave, meeting.ID, nil)); err != nil {
		m.logger.Warn("failed to publish leave for concurrency loser", "meeting_id", meeting.ID, "error", err)
	}
	_, err = m.store.Transition(ctx, meeting.ID, nonTerminalStatuses, models.StatusFailed, TransitionPatch{
		FailureStage: models.FailureStageConcurrency,
	})
	return err
}

// Active handles the worker's active callback: set start_time, cancel the
// admission timer, and start the heartbeat watchdog and alone-since timer.
func (m *Manager) Active(ctx context.Context, meetingID string) error {
	now := time.Now().UTC()
	_, err := m.store.Transition(ctx, meetingID, []models.MeetingStatus{models.StatusJoining, models.StatusAwaitingAdmission}, models.StatusActive, TransitionPatch{
		StartTime: &now,
	})
	if err != nil {
		return err
	}

	timers := m.timersFor(meetingID)
	timers.cancelAdmission()
	timers.startWatchdog(m.timeouts.HeartbeatWatchdog, func() {
		m.onHeartbeatLost(context.Background(), meetingID)
	})
	timers.startAloneSince(m.timeouts.AloneSinceStartup, func() {
		m.onAloneTimeout(context.Background(), meetingID)
	})
	return nil
}

// StatusUpdateHeartbeat handles a liveness heartbeat from an active
// worker. Per this expansion's resolved Open Question (SPEC_FULL.md §3),
// every heartbeat resets both the watchdog and the alone-since timer.
func (m *Manager) StatusUpdateHeartbeat(ctx context.Context, meetingID string) error {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.Status != models.StatusActive {
		return nil // heartbeats outside active are ignored, not an error
	}
	timers := m.timersFor(meetingID)
	timers.resetWatchdog(m.timeouts.HeartbeatWatchdog, func() {
		m.onHeartbeatLost(context.Background(), meetingID)
	})
	timers.resetAloneSince(m.timeouts.AloneSincePostSpeaker, func() {
		m.onAloneTimeout(context.Background(), meetingID)
	})
	return nil
}

// Reconfigure handles PUT /bots/.../config: publish reconfigure on the bus
// and patch the stored config. recording_enabled may not change mid-session
// (SPEC_FULL.md §3 resolution) — the API layer enforces that at request
// binding, since the wire payload here only ever carries language/task.
func (m *Manager) Reconfigure(ctx context.Context, meetingID, language, task string) error {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil {
		return err
	}
	switch meeting.Status {
	case models.StatusJoining, models.StatusAwaitingAdmission, models.StatusActive:
	default:
		return ErrPreconditionFailed
	}

	cmd, err := bus.NewCommand(bus.ActionReconfigure, meetingID, bus.ReconfigurePayload{Language: language, Task: task})
	if err != nil {
		return fmt.Errorf("build reconfigure command: %w", err)
	}
	if err := m.bus.PublishCommand(ctx, cmd); err != nil {
		return fmt.Errorf("publish reconfigure: %w", err)
	}

	newConfig := meeting.Config
	newConfig.Language = language
	newConfig.Task = models.TaskMode(task)
	_, err = m.store.Transition(ctx, meetingID, nonTerminalStatuses, meeting.Status, TransitionPatch{Config: &newConfig})
	return err
}

// Stop handles a client DELETE: publish leave and transition to completing.
func (m *Manager) Stop(ctx context.Context, meetingID string) error {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.Status.Terminal() {
		return nil // already terminal: idempotent per base spec §6
	}

	if err := m.bus.PublishCommand(ctx, mustCommand(bus.ActionLeave, meetingID, nil)); err != nil {
		m.logger.Warn("publish leave failed, falling back to hard terminate", "meeting_id", meetingID, "error", err)
		if meeting.WorkerRef != nil {
			_ = m.orchestrator.Stop(ctx, *meeting.WorkerRef, 0)
		}
	}

	_, err = m.store.Transition(ctx, meetingID, nonTerminalStatuses, models.StatusCompleting, TransitionPatch{})
	return err
}

// ExitDetail carries the full worker exit callback payload (base spec §6's
// `{status, reason, exit_code?, completion_reason?, failure_stage?,
// error_details?, container_name?}`) through to Exit, so nothing the worker
// self-reports about its own termination is thrown away before it reaches
// the Registry and the webhook payload.
type ExitDetail struct {
	Reason           string
	ExitCode         *int
	CompletionReason string
	FailureStage     string
	ErrorDetails     string
	ContainerName    string
}

// Exit handles the worker's terminal exit callback: map the reported
// reason (falling back to the exit code's normative meaning per base spec
// §6 when the worker reported no reason at all) to a terminal status,
// detach the worker, and fire exactly one webhook (base spec §7's "all
// terminal transitions emit exactly one webhook" property). A worker's own
// completion_reason/failure_stage/error_details, when present, take
// precedence over the table-derived defaults, and error_details always
// flows through into the Meeting's error_message and the webhook payload.
func (m *Manager) Exit(ctx context.Context, meetingID string, detail ExitDetail) error {
	reason := detail.Reason
	if reason == "" && detail.ExitCode != nil {
		reason = orchestrator.ExitCodeMeaning(*detail.ExitCode)
	}

	status, completionReason, failureStage := MapExitReason(reason)
	if detail.CompletionReason != "" {
		completionReason = detail.CompletionReason
	}
	if detail.FailureStage != "" {
		failureStage = models.FailureStage(detail.FailureStage)
	}

	if detail.ContainerName != "" {
		m.logger.Info("worker exited", "meeting_id", meetingID, "container_name", detail.ContainerName, "reason", reason)
	}

	return m.terminate(ctx, meetingID, status, completionReason, failureStage, detail.ErrorDetails)
}

func (m *Manager) onAdmissionTimeout(ctx context.Context, meetingID string) {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil || meeting.Status.Terminal() {
		return
	}
	if meeting.Status != models.StatusJoining && meeting.Status != models.StatusAwaitingAdmission {
		return
	}

	if err := m.bus.PublishCommand(ctx, mustCommand(bus.ActionLeave, meetingID, nil)); err != nil {
		m.logger.Warn("publish leave on admission timeout failed", "meeting_id", meetingID, "error", err)
	}

	time.AfterFunc(m.timeouts.AdmissionGrace, func() {
		m.forceTerminateIfStillLive(context.Background(), meetingID, models.FailureStageAdmission)
	})
}

func (m *Manager) onAloneTimeout(ctx context.Context, meetingID string) {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil || meeting.Status != models.StatusActive {
		return
	}
	if err := m.bus.PublishCommand(ctx, mustCommand(bus.ActionLeave, meetingID, nil)); err != nil {
		m.logger.Warn("publish leave on alone timeout failed", "meeting_id", meetingID, "error", err)
	}
	// If the worker doesn't call back with an exit reason in time, force a
	// left_alone completion so the meeting doesn't hang forever.
	time.AfterFunc(m.timeouts.AdmissionGrace, func() {
		m.forceCompleteIfStillLive(context.Background(), meetingID, models.CompletionReasonLeftAlone)
	})
}

func (m *Manager) onHeartbeatLost(ctx context.Context, meetingID string) {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil || meeting.Status != models.StatusActive {
		return
	}
	status, completionReason, failureStage := HeartbeatLostOutcome()
	_ = m.terminate(ctx, meetingID, status, completionReason, failureStage, "worker unreachable past watchdog")
}

func (m *Manager) forceTerminateIfStillLive(ctx context.Context, meetingID string, stage models.FailureStage) {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil || meeting.Status.Terminal() {
		return
	}
	if meeting.WorkerRef != nil {
		_ = m.orchestrator.Stop(ctx, *meeting.WorkerRef, 0)
	}
	_ = m.terminate(ctx, meetingID, models.StatusFailed, "", stage, "admission timed out")
}

func (m *Manager) forceCompleteIfStillLive(ctx context.Context, meetingID, completionReason string) {
	meeting, err := m.store.Get(ctx, meetingID)
	if err != nil || meeting.Status.Terminal() {
		return
	}
	if meeting.WorkerRef != nil {
		_ = m.orchestrator.Stop(ctx, *meeting.WorkerRef, 0)
	}
	_ = m.terminate(ctx, meetingID, models.StatusCompleted, completionReason, "", "")
}

// terminate is the single reducer every termination path funnels through:
// detach the worker, transition to the mapped terminal status, cancel the
// meeting's timers, and fire exactly one webhook.
func (m *Manager) terminate(ctx context.Context, meetingID string, status models.MeetingStatus, completionReason string, failureStage models.FailureStage, errorMessage string) error {
	now := time.Now().UTC()
	meeting, err := m.store.Transition(ctx, meetingID, nonTerminalStatuses, status, TransitionPatch{
		EndTime:          &now,
		CompletionReason: completionReason,
		FailureStage:     failureStage,
		ErrorMessage:     errorMessage,
	})
	if err != nil {
		return err
	}

	if err := m.store.DetachWorker(ctx, meetingID); err != nil {
		m.logger.Error("failed to detach worker on termination", "meeting_id", meetingID, "error", err)
	}
	m.dropTimers(meetingID)

	m.fireWebhook(ctx, meeting)
	return nil
}

func (m *Manager) fireWebhook(ctx context.Context, meeting *models.Meeting) {
	owner, err := m.store.GetUser(ctx, meeting.Owner)
	if err != nil || owner.WebhookURL == "" {
		return
	}
	url := owner.WebhookURL
	nativeID := ""
	if meeting.NativeMeetingID != nil {
		nativeID = *meeting.NativeMeetingID
	}
	payload := webhook.Payload{
		MeetingID:        meeting.ID,
		Platform:         string(meeting.Platform),
		NativeMeetingID:  nativeID,
		Status:           string(meeting.Status),
		CompletionReason: meeting.CompletionReason,
		FailureStage:     string(meeting.FailureStage),
		ErrorMessage:     meeting.ErrorMessage,
		StartTime:        meeting.StartTime,
		EndTime:          meeting.EndTime,
	}
	if err := m.webhooks.Dispatch(ctx, meeting.ID, url, payload); err != nil {
		m.logger.Error("failed to enqueue webhook", "meeting_id", meeting.ID, "error", err)
	}
}

// ForceFail fails a meeting directly, bypassing the normal exit-reason
// funnel. Used by the background task runner's stuck-request reaper, where
// there is no worker-reported exit to map in the first place.
func (m *Manager) ForceFail(ctx context.Context, meetingID string, stage models.FailureStage, message string) error {
	return m.terminate(ctx, meetingID, models.StatusFailed, "", stage, message)
}

// ReconcileOnRestart implements the resolved Open Question on orchestrator
// restart (SPEC_FULL.md §3): list live workers, cross-reference against
// non-terminal Registry rows, and fail any meeting whose worker has
// vanished — the direct analog of the teacher's CleanupStartupOrphans.
func (m *Manager) ReconcileOnRestart(ctx context.Context, candidates []*models.Meeting) error {
	live, err := m.orchestrator.List(ctx)
	if err != nil {
		return fmt.Errorf("list live workers: %w", err)
	}
	liveRefs := make(map[string]bool, len(live))
	for _, w := range live {
		if w.State == orchestrator.WorkerRunning {
			liveRefs[w.WorkerRef] = true
		}
	}

	for _, meeting := range candidates {
		if meeting.WorkerRef == nil || liveRefs[*meeting.WorkerRef] {
			continue
		}
		if err := m.terminate(ctx, meeting.ID, models.StatusFailed, "", models.FailureStageOrphaned, "worker vanished across orchestrator restart"); err != nil {
			m.logger.Error("failed to fail orphaned meeting", "meeting_id", meeting.ID, "error", err)
		}
	}
	return nil
}

func mustCommand(action bus.Action, meetingID string, payload any) bus.Command {
	cmd, err := bus.NewCommand(action, meetingID, payload)
	if err != nil {
		// Only reachable if payload fails to marshal; every call site above
		// passes nil or a struct whose fields are all plain strings.
		panic(err)
	}
	return cmd
}
