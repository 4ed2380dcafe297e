package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexa-ai/vexa/pkg/models"
	"github.com/vexa-ai/vexa/pkg/webhook"
)

type fakeRegistryStore struct {
	stuck  []*models.Meeting
	orphan []*models.Meeting
}

func (f *fakeRegistryStore) ListStuckRequests(ctx context.Context, olderThan time.Time) ([]*models.Meeting, error) {
	return f.stuck, nil
}
func (f *fakeRegistryStore) ListOrphanCandidates(ctx context.Context) ([]*models.Meeting, error) {
	return f.orphan, nil
}

type fakeLifecycle struct {
	failed      []string
	reconciled  []*models.Meeting
}

func (f *fakeLifecycle) ReconcileOnRestart(ctx context.Context, candidates []*models.Meeting) error {
	f.reconciled = append(f.reconciled, candidates...)
	return nil
}
func (f *fakeLifecycle) ForceFail(ctx context.Context, meetingID string, stage models.FailureStage, message string) error {
	f.failed = append(f.failed, meetingID)
	return nil
}

type fakeWebhookStore struct {
	pending []*webhook.Delivery
}

func (f *fakeWebhookStore) ListPending(ctx context.Context, limit int) ([]*webhook.Delivery, error) {
	return f.pending, nil
}

type fakeDrainer struct {
	drained []*webhook.Delivery
}

func (f *fakeDrainer) DrainOne(ctx context.Context, delivery *webhook.Delivery) {
	f.drained = append(f.drained, delivery)
}

func TestReapStuckRequests_ForceFailsEach(t *testing.T) {
	store := &fakeRegistryStore{stuck: []*models.Meeting{{ID: "m1"}, {ID: "m2"}}}
	lifecycle := &fakeLifecycle{}
	r := New(DefaultConfig(), store, lifecycle, &fakeWebhookStore{}, &fakeDrainer{})

	r.reapStuckRequests(context.Background())
	require.Len(t, lifecycle.failed, 2)
	assert.ElementsMatch(t, []string{"m1", "m2"}, lifecycle.failed)
}

func TestReapOrphanWorkers_DelegatesToReconcile(t *testing.T) {
	candidates := []*models.Meeting{{ID: "m1"}}
	store := &fakeRegistryStore{orphan: candidates}
	lifecycle := &fakeLifecycle{}
	r := New(DefaultConfig(), store, lifecycle, &fakeWebhookStore{}, &fakeDrainer{})

	r.reapOrphanWorkers(context.Background())
	require.Len(t, lifecycle.reconciled, 1)
	assert.Equal(t, "m1", lifecycle.reconciled[0].ID)
}

func TestReapOrphanWorkers_NoCandidatesSkipsReconcile(t *testing.T) {
	store := &fakeRegistryStore{}
	lifecycle := &fakeLifecycle{}
	r := New(DefaultConfig(), store, lifecycle, &fakeWebhookStore{}, &fakeDrainer{})

	r.reapOrphanWorkers(context.Background())
	assert.Empty(t, lifecycle.reconciled)
}

func TestDrainWebhooks_DrainsEveryPending(t *testing.T) {
	pending := []*webhook.Delivery{{ID: "d1"}, {ID: "d2"}}
	ws := &fakeWebhookStore{pending: pending}
	drainer := &fakeDrainer{}
	r := New(DefaultConfig(), &fakeRegistryStore{}, &fakeLifecycle{}, ws, drainer)

	r.drainWebhooks(context.Background())
	require.Len(t, drainer.drained, 2)
}
