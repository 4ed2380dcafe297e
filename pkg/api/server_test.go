package api

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vexa-ai/vexa/pkg/bus"
	"github.com/vexa-ai/vexa/pkg/config"
	"github.com/vexa-ai/vexa/pkg/lifecycle"
	"github.com/vexa-ai/vexa/pkg/models"
	"github.com/vexa-ai/vexa/pkg/orchestrator"
	"github.com/vexa-ai/vexa/pkg/recordings"
	"github.com/vexa-ai/vexa/pkg/registry"
	"github.com/vexa-ai/vexa/pkg/webhook"
)

// fakeOrchestrator is a hand-written Orchestrator double: the container and
// process backends both need a real substrate (Docker, a process tree),
// neither of which belongs in a unit test.
type fakeOrchestrator struct {
	startRef string
	startErr error
	stopErr  error
	live     []orchestrator.WorkerInfo
}

func (f *fakeOrchestrator) Start(ctx context.Context, params orchestrator.StartParams) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.startRef == "" {
		return "worker-1", nil
	}
	return f.startRef, nil
}

func (f *fakeOrchestrator) Stop(ctx context.Context, workerRef string, grace time.Duration) error {
	return f.stopErr
}

func (f *fakeOrchestrator) Inspect(ctx context.Context, workerRef string) (orchestrator.WorkerInfo, error) {
	return orchestrator.WorkerInfo{WorkerRef: workerRef, State: orchestrator.WorkerRunning}, nil
}

func (f *fakeOrchestrator) List(ctx context.Context) ([]orchestrator.WorkerInfo, error) {
	return f.live, nil
}

// fakeWebhookNotifier is a hand-written WebhookNotifier double: the real
// Dispatcher needs its own durable Store, which is its own package's concern
// to test.
type fakeWebhookNotifier struct {
	dispatched []webhook.Payload
}

func (f *fakeWebhookNotifier) Dispatch(ctx context.Context, meetingID, url string, payload webhook.Payload) error {
	f.dispatched = append(f.dispatched, payload)
	return nil
}

func newTestBus(t *testing.T) *bus.Bus {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return bus.New(rdb)
}

func newTestRegistry(t *testing.T) (*registry.Registry, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return registry.New(db), mock
}

// testServer wires a Server with real dependency types wherever their
// exported constructors make that practical (sqlmock-backed Registry,
// miniredis-backed Bus, a real LocalStore over a temp dir), and hand-written
// fakes only for the orchestrator and webhook substrates.
type testServer struct {
	server       *Server
	registryMock sqlmock.Sqlmock
	orchestrator *fakeOrchestrator
	webhooks     *fakeWebhookNotifier
}

func newTestServer(t *testing.T) *testServer {
	reg, mock := newTestRegistry(t)
	commandBus := newTestBus(t)
	orch := &fakeOrchestrator{}
	hooks := &fakeWebhookNotifier{}
	manager := lifecycle.New(reg, orch, commandBus, hooks, config.DefaultTimeouts())

	store, err := recordings.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{AdminAPIToken: "admin-secret", PublicBaseURL: "http://localhost:8080"}

	s := NewServer(cfg, nil, reg, manager, store, commandBus)
	return &testServer{server: s, registryMock: mock, orchestrator: orch, webhooks: hooks}
}

// withOwner wraps h so the handler under test sees owner already resolved
// in context, bypassing apiKeyAuth — auth itself is covered in auth_test.go.
func withOwner(owner *models.User, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ownerContextKey, owner)
		h(c)
	}
}

func newRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
