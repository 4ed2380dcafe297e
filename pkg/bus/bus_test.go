package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb)
}

func TestPublishCommand_FiltersByMeetingID(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received, closeSub := b.SubscribeCommands(ctx, "m1")
	defer closeSub()

	time.Sleep(50 * time.Millisecond) // let the subscription establish

	cmd, err := NewCommand(ActionLeave, "m2", nil)
	require.NoError(t, err)
	require.NoError(t, b.PublishCommand(ctx, cmd))

	cmd2, err := NewCommand(ActionLeave, "m1", nil)
	require.NoError(t, err)
	require.NoError(t, b.PublishCommand(ctx, cmd2))

	select {
	case got := <-received:
		assert.Equal(t, "m1", got.MeetingID)
		assert.Equal(t, ActionLeave, got.Action)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestPublishCommand_ReconfigurePayloadRoundTrips(t *testing.T) {
	cmd, err := NewCommand(ActionReconfigure, "m1", ReconfigurePayload{Language: "fr", Task: "translate"})
	require.NoError(t, err)

	var payload ReconfigurePayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, "fr", payload.Language)
	assert.Equal(t, "translate", payload.Task)
}
