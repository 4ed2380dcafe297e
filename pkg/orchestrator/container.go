package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// containerOrchestrator drives a local container runtime by shelling out to
// the docker CLI via os/exec, the same substrate-access pattern the pack's
// sandbox executor uses for running untrusted code: docker run/create/cp/rm
// through exec.CommandContext rather than the full Docker Engine SDK.
//
// One container per meeting; containers are named vexa-bot-{meeting_id} so
// List can recover worker identity after a process restart without any
// local bookkeeping.
type containerOrchestrator struct {
	image string
	mu    sync.Mutex
}

// NewContainerOrchestrator returns an Orchestrator backed by the docker CLI.
// image is the bot worker image run for every meeting.
func NewContainerOrchestrator(image string) Orchestrator {
	return &containerOrchestrator{image: image}
}

const containerNamePrefix = "vexa-bot-"

func containerName(meetingID string) string {
	return containerNamePrefix + meetingID
}

func (o *containerOrchestrator) Start(ctx context.Context, params StartParams) (string, error) {
	configBlob, err := json.Marshal(params.Config)
	if err != nil {
		return "", fmt.Errorf("marshal worker config: %w", err)
	}

	name := containerName(params.MeetingID)
	args := []string{
		"run", "-d", "--rm",
		"--name", name,
		"-e", "BOT_CONFIG=" + string(configBlob),
		"-e", "MEETING_ID=" + params.MeetingID,
		"-e", "PLATFORM=" + string(params.Platform),
		"-e", "NATIVE_MEETING_ID=" + params.NativeMeetingID,
		"-e", "CALLBACK_URL=" + params.CallbackURL,
		"-e", "COMMAND_BUS_ENDPOINT=" + params.CommandBusEndpoint,
		"-e", "TRANSCRIPTION_URL=" + params.TranscriptionURL,
		"-e", "TRANSCRIPTION_TOKEN=" + params.TranscriptionToken,
		"-e", "WHISPER_MODEL_SIZE=" + params.WhisperModelSize,
		"-e", "MEETING_TOKEN=" + params.MeetingToken,
		o.image,
	}

	out, err := runDocker(ctx, args...)
	if err != nil {
		if strings.Contains(err.Error(), "No such image") || strings.Contains(err.Error(), "manifest unknown") {
			return "", fmt.Errorf("%w: %s", ErrBadImage, err)
		}
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			return "", fmt.Errorf("%w: %s", ErrSubstrateUnavailable, err)
		}
		return "", fmt.Errorf("docker run: %w", err)
	}

	containerID := strings.TrimSpace(out)
	if containerID == "" {
		return "", fmt.Errorf("%w: docker run returned empty container id", ErrSubstrateUnavailable)
	}
	return containerID, nil
}

func (o *containerOrchestrator) Stop(ctx context.Context, workerRef string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	_, err := runDocker(ctx, "stop", "-t", strconv.Itoa(seconds), workerRef)
	if err != nil {
		// Already gone is not an error from the caller's perspective.
		if strings.Contains(err.Error(), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop: %w", err)
	}
	return nil
}

func (o *containerOrchestrator) Inspect(ctx context.Context, workerRef string) (WorkerInfo, error) {
	out, err := runDocker(ctx, "inspect", "--format", "{{.State.Running}}|{{.State.ExitCode}}", workerRef)
	if err != nil {
		if strings.Contains(err.Error(), "No such object") {
			return WorkerInfo{WorkerRef: workerRef, State: WorkerMissing}, nil
		}
		return WorkerInfo{}, fmt.Errorf("docker inspect: %w", err)
	}
	parts := strings.SplitN(strings.TrimSpace(out), "|", 2)
	running := len(parts) > 0 && parts[0] == "true"
	info := WorkerInfo{WorkerRef: workerRef, State: WorkerExited}
	if running {
		info.State = WorkerRunning
	} else if len(parts) > 1 {
		if code, err := strconv.Atoi(parts[1]); err == nil {
			info.ExitCode = &code
		}
	}
	return info, nil
}

func (o *containerOrchestrator) List(ctx context.Context) ([]WorkerInfo, error) {
	out, err := runDocker(ctx, "ps", "-a", "--no-trunc", "--filter", "name="+containerNamePrefix, "--format", "{{.ID}}|{{.Names}}|{{.State}}")
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}
	var infos []WorkerInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 3)
		if len(fields) != 3 {
			continue
		}
		meetingID := strings.TrimPrefix(fields[1], containerNamePrefix)
		state := WorkerExited
		if fields[2] == "running" {
			state = WorkerRunning
		}
		infos = append(infos, WorkerInfo{WorkerRef: fields[0], MeetingID: meetingID, State: state})
	}
	return infos, nil
}

func runDocker(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s", msg)
	}
	return stdout.String(), nil
}
