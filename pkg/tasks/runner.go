// Package tasks implements the background task runner: periodic sweeps
// that keep the Registry consistent with reality even when the normal
// event-driven path is interrupted (a worker that never calls back, an
// orchestrator restart, a webhook queue overflow), per base spec §4.6.
//
// The ticker-loop shape is grounded in the teacher's pkg/cleanup.Service;
// the individual sweeps are grounded in pkg/queue/orphan.go's
// detectAndRecoverOrphans and CleanupStartupOrphans.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vexa-ai/vexa/pkg/models"
	"github.com/vexa-ai/vexa/pkg/webhook"
)

// RegistryStore is the Registry surface the background runner needs.
type RegistryStore interface {
	ListStuckRequests(ctx context.Context, olderThan time.Time) ([]*models.Meeting, error)
	ListOrphanCandidates(ctx context.Context) ([]*models.Meeting, error)
}

// LifecycleManager is the subset of *lifecycle.Manager the runner drives.
type LifecycleManager interface {
	ReconcileOnRestart(ctx context.Context, candidates []*models.Meeting) error
	ForceFail(ctx context.Context, meetingID string, stage models.FailureStage, message string) error
}

// WebhookStore is the webhook.Store surface the drain sweep needs.
type WebhookStore interface {
	ListPending(ctx context.Context, limit int) ([]*webhook.Delivery, error)
}

// WebhookDrainer is the webhook.Dispatcher surface the drain sweep needs.
type WebhookDrainer interface {
	DrainOne(ctx context.Context, delivery *webhook.Delivery)
}

// Config controls sweep cadence and thresholds.
type Config struct {
	Interval          time.Duration // how often every sweep runs
	StuckRequestAfter time.Duration // requested/joining older than this is stuck
	WebhookDrainLimit int           // max pending deliveries drained per tick
}

// DefaultConfig returns reasonable defaults: a one-minute tick, a five
// minute stuck-request threshold (comfortably past the worst-case spawn
// deadline plus a retry), and a drain batch of 50.
func DefaultConfig() Config {
	return Config{
		Interval:          1 * time.Minute,
		StuckRequestAfter: 5 * time.Minute,
		WebhookDrainLimit: 50,
	}
}

// Runner owns the background sweep loop.
type Runner struct {
	cfg          Config
	store        RegistryStore
	lifecycle    LifecycleManager
	webhookStore WebhookStore
	dispatcher   WebhookDrainer
	logger       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Runner. Orchestrator access for reconciliation happens
// inside LifecycleManager.ReconcileOnRestart, not here — the runner only
// decides when to sweep, not how to reach the substrate.
func New(cfg Config, store RegistryStore, lifecycle LifecycleManager, webhookStore WebhookStore, dispatcher WebhookDrainer) *Runner {
	return &Runner{
		cfg:          cfg,
		store:        store,
		lifecycle:    lifecycle,
		webhookStore: webhookStore,
		dispatcher:   dispatcher,
		logger:       slog.Default().With("component", "tasks"),
	}
}

// Start launches the background sweep loop. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
	r.logger.Info("background task runner started", "interval", r.cfg.Interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info("background task runner stopped")
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	r.runAll(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAll(ctx)
		}
	}
}

func (r *Runner) runAll(ctx context.Context) {
	var wg sync.WaitGroup
	sweeps := []func(context.Context){r.reapStuckRequests, r.reapOrphanWorkers, r.drainWebhooks}
	wg.Add(len(sweeps))
	for _, sweep := range sweeps {
		sweep := sweep
		go func() {
			defer wg.Done()
			sweep(ctx)
		}()
	}
	wg.Wait()
}
