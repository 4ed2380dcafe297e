package lifecycle

import (
	"errors"

	"github.com/vexa-ai/vexa/pkg/registry"
)

var (
	// ErrMeetingNotFound mirrors registry.ErrNotFound for callers that only
	// import this package.
	ErrMeetingNotFound = errors.New("meeting not found")

	// ErrPreconditionFailed is returned when an event's precondition on the
	// meeting's current status (per base spec §4.2's event table) doesn't
	// hold. It is the Registry's own ErrInvalidTransition, so a conditional
	// update the Registry rejected and a failed check in this package
	// surface as the same error.
	ErrPreconditionFailed = registry.ErrInvalidTransition

	// ErrNoActiveWorker is returned when an operation needs a worker_ref
	// but the meeting has none attached.
	ErrNoActiveWorker = errors.New("meeting has no active worker")
)
