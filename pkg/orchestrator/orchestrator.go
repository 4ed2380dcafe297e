// Package orchestrator hides the worker spawn/terminate substrate behind a
// single interface shared by the container and process backends, per base
// spec §4.3 and the redesign flag in §9 ("two orchestrator implementations
// sharing no types").
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/vexa-ai/vexa/pkg/models"
)

// Sentinel errors returned by Start. Handlers map these to lifecycle
// failure stages; nothing else should branch on error text.
var (
	ErrSubstrateUnavailable = errors.New("substrate unavailable")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrBadImage             = errors.New("bad image") // container backend only
)

// WorkerState is the coarse liveness of a worker as seen by inspect/list.
type WorkerState string

const (
	WorkerRunning WorkerState = "running"
	WorkerExited  WorkerState = "exited"
	WorkerMissing WorkerState = "missing"
)

// StartParams carries everything a worker needs to bootstrap itself,
// addressed entirely by URL/token so the substrate never needs orchestrator
// internals.
type StartParams struct {
	MeetingID          string
	Config             models.MeetingConfig
	Platform           models.Platform
	NativeMeetingID    string
	CallbackURL        string
	CommandBusEndpoint string
	TranscriptionURL   string
	TranscriptionToken string
	WhisperModelSize   string // local ASR model size, only meaningful when TranscriptionURL points at a self-hosted sink
	MeetingToken       string // opaque auth token the worker presents back to the core
}

// WorkerInfo is what list() and inspect() report about a single worker.
type WorkerInfo struct {
	WorkerRef string
	MeetingID string
	State     WorkerState
	ExitCode  *int
}

// Orchestrator creates, inspects, and terminates bot workers. Implementations
// must be safe for concurrent use across meetings; the Lifecycle Manager
// holds this interface, never a concrete backend type.
type Orchestrator interface {
	// Start must return once the worker has been accepted by the substrate;
	// it does not wait for the worker's joining_ack callback. The caller is
	// expected to bound this call with a deadline (base spec §5: ~10s).
	Start(ctx context.Context, params StartParams) (workerRef string, err error)

	// Stop sends a soft-stop and, if the worker hasn't exited within
	// grace, issues a hard termination.
	Stop(ctx context.Context, workerRef string, grace time.Duration) error

	// Inspect reports a single worker's current state.
	Inspect(ctx context.Context, workerRef string) (WorkerInfo, error)

	// List reports every worker currently known to the backend, for
	// self-healing reconciliation on orchestrator restart.
	List(ctx context.Context) ([]WorkerInfo, error)
}
