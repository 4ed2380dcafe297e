package tasks

import (
	"context"
	"time"

	"github.com/vexa-ai/vexa/pkg/models"
)

// reapStuckRequests force-fails meetings stuck in requested/joining past
// StuckRequestAfter — a worker that accepted the spawn but never reached
// awaiting_admission or active, and whose exit (if any) got lost.
func (r *Runner) reapStuckRequests(ctx context.Context) {
	threshold := time.Now().Add(-r.cfg.StuckRequestAfter)
	stuck, err := r.store.ListStuckRequests(ctx, threshold)
	if err != nil {
		r.logger.Error("list stuck requests failed", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	r.logger.Warn("reaping stuck requests", "count", len(stuck))
	for _, meeting := range stuck {
		if err := r.lifecycle.ForceFail(ctx, meeting.ID, models.FailureStageSpawn, "stuck in requested/joining past threshold"); err != nil {
			r.logger.Error("failed to reap stuck request", "meeting_id", meeting.ID, "error", err)
		}
	}
}

// reapOrphanWorkers cross-references non-terminal meetings with attached
// workers against the orchestrator's live list. Meetings whose worker has
// vanished (missing from List(), or present but no longer running) are
// failed, covering both an orchestrator restart and a worker that died
// without ever calling back.
func (r *Runner) reapOrphanWorkers(ctx context.Context) {
	candidates, err := r.store.ListOrphanCandidates(ctx)
	if err != nil {
		r.logger.Error("list orphan candidates failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	if err := r.lifecycle.ReconcileOnRestart(ctx, candidates); err != nil {
		r.logger.Error("orphan reconciliation failed", "error", err)
	}
}

// drainWebhooks resumes delivery of any webhook that's still pending —
// either it never got a worker-pool slot before a restart, or its
// in-process retry budget expired and it's waiting on this background
// drain, per base spec §8's at-least-once delivery property.
func (r *Runner) drainWebhooks(ctx context.Context) {
	pending, err := r.webhookStore.ListPending(ctx, r.cfg.WebhookDrainLimit)
	if err != nil {
		r.logger.Error("list pending webhooks failed", "error", err)
		return
	}
	for _, delivery := range pending {
		r.dispatcher.DrainOne(ctx, delivery)
	}
}
