package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// processEntry is one row of the pid table: a single bot worker child
// process and what's known about it.
type processEntry struct {
	workerRef string
	meetingID string
	cmd       *exec.Cmd
	state     WorkerState
	exitCode  *int
}

// processOrchestrator forks/execs a child process per meeting and reaps it
// via cmd.Wait() in a dedicated goroutine (the Go analog of a SIGCHLD
// handler), holding a pid table keyed by workerRef; each entry records its
// meetingID, and the table has no index by meeting id.
type processOrchestrator struct {
	binPath string

	mu      sync.Mutex
	entries map[string]*processEntry // workerRef -> entry
}

// NewProcessOrchestrator returns an Orchestrator that runs the bot worker
// binary at binPath as a local child process per meeting.
func NewProcessOrchestrator(binPath string) Orchestrator {
	return &processOrchestrator{
		binPath: binPath,
		entries: make(map[string]*processEntry),
	}
}

func (o *processOrchestrator) Start(ctx context.Context, params StartParams) (string, error) {
	configBlob, err := json.Marshal(params.Config)
	if err != nil {
		return "", fmt.Errorf("marshal worker config: %w", err)
	}

	cmd := exec.Command(o.binPath)
	cmd.Env = append(cmd.Env,
		"BOT_CONFIG="+string(configBlob),
		"MEETING_ID="+params.MeetingID,
		"PLATFORM="+string(params.Platform),
		"NATIVE_MEETING_ID="+params.NativeMeetingID,
		"CALLBACK_URL="+params.CallbackURL,
		"COMMAND_BUS_ENDPOINT="+params.CommandBusEndpoint,
		"TRANSCRIPTION_URL="+params.TranscriptionURL,
		"TRANSCRIPTION_TOKEN="+params.TranscriptionToken,
		"WHISPER_MODEL_SIZE="+params.WhisperModelSize,
		"MEETING_TOKEN="+params.MeetingToken,
	)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSubstrateUnavailable, err)
	}

	workerRef := uuid.NewString()
	entry := &processEntry{
		workerRef: workerRef,
		meetingID: params.MeetingID,
		cmd:       cmd,
		state:     WorkerRunning,
	}

	o.mu.Lock()
	o.entries[workerRef] = entry
	o.mu.Unlock()

	go o.reap(entry)

	return workerRef, nil
}

// reap blocks on cmd.Wait() and records the exit code once the process
// dies, mirroring a SIGCHLD handler without requiring one.
func (o *processOrchestrator) reap(entry *processEntry) {
	err := entry.cmd.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	entry.state = WorkerExited
	code := entry.cmd.ProcessState.ExitCode()
	entry.exitCode = &code
	_ = err // exit code already captures the outcome; err is non-nil for any non-zero exit
}

func (o *processOrchestrator) Stop(ctx context.Context, workerRef string, grace time.Duration) error {
	o.mu.Lock()
	entry, ok := o.entries[workerRef]
	o.mu.Unlock()
	if !ok {
		return nil // already gone
	}
	if entry.cmd.Process == nil {
		return nil
	}

	if err := entry.cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil // already exited
		}
		return fmt.Errorf("signal process: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			o.mu.Lock()
			state := entry.state
			o.mu.Unlock()
			if state == WorkerExited {
				close(done)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		if err := entry.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill process: %w", err)
		}
		return nil
	}
}

func (o *processOrchestrator) Inspect(ctx context.Context, workerRef string) (WorkerInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[workerRef]
	if !ok {
		return WorkerInfo{WorkerRef: workerRef, State: WorkerMissing}, nil
	}
	return WorkerInfo{WorkerRef: workerRef, MeetingID: entry.meetingID, State: entry.state, ExitCode: entry.exitCode}, nil
}

// List reports every worker this process knows about. On a fresh process
// restart the pid table is empty, so every previously-running meeting's
// worker correctly reports as absent from the list — the Lifecycle
// Manager's reconciliation treats "not in List()" as WorkerMissing.
func (o *processOrchestrator) List(ctx context.Context) ([]WorkerInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	infos := make([]WorkerInfo, 0, len(o.entries))
	for _, entry := range o.entries {
		infos = append(infos, WorkerInfo{WorkerRef: entry.workerRef, MeetingID: entry.meetingID, State: entry.state, ExitCode: entry.exitCode})
	}
	return infos, nil
}

// ExitCodeMeaning maps the normative worker exit codes from base spec §6 to
// a short reason string; lifecycle.Exit uses it when a worker's exited
// callback carries an exit code but no reason.
func ExitCodeMeaning(code int) string {
	switch code {
	case 0:
		return "normal_completion"
	case 2:
		return "bad_config"
	case 130:
		return "signal_sigint"
	case 143:
		return "signal_sigterm"
	default:
		return "generic_failure_" + strconv.Itoa(code)
	}
}
