package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexa-ai/vexa/pkg/models"
)

func TestProcessOrchestrator_StartInspectStop(t *testing.T) {
	o := NewProcessOrchestrator("/bin/sleep")
	ctx := context.Background()

	ref, err := o.Start(ctx, StartParams{MeetingID: "m1", Config: models.MeetingConfig{}})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	info, err := o.Inspect(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "m1", info.MeetingID)

	err = o.Stop(ctx, ref, 2*time.Second)
	require.NoError(t, err)

	// Allow the reap goroutine to observe the exit.
	time.Sleep(50 * time.Millisecond)
	info, err = o.Inspect(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, WorkerExited, info.State)
}

func TestProcessOrchestrator_InspectUnknownIsMissing(t *testing.T) {
	o := NewProcessOrchestrator("/bin/true")
	info, err := o.Inspect(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, WorkerMissing, info.State)
}

func TestExitCodeMeaning(t *testing.T) {
	assert.Equal(t, "normal_completion", ExitCodeMeaning(0))
	assert.Equal(t, "signal_sigint", ExitCodeMeaning(130))
	assert.Equal(t, "signal_sigterm", ExitCodeMeaning(143))
	assert.Equal(t, "bad_config", ExitCodeMeaning(2))
}
