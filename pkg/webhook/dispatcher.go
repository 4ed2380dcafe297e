// Package webhook implements the Webhook Dispatcher: on every terminal
// lifecycle transition, deliver a signed HTTP POST to the meeting owner's
// configured callback URL, with bounded retry and SSRF protection, per base
// spec §4.5.
//
// Modeled on the teacher's pkg/slack/service.go (a typed notification
// service, fail-open, errors only logged) but generalized from Slack
// messages to signed HTTP POSTs; the retry/backoff shape follows
// pkg/queue/worker.go's jitter helper.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/vexa-ai/vexa/pkg/version"
)

const (
	maxAttempts  = 3
	totalBudget  = 30 * time.Second
	baseBackoff  = 1 * time.Second
)

// SecretLookup resolves the current webhook secret for a meeting owner at
// send time, so a rotated secret is honored even for deliveries that were
// persisted before the rotation.
type SecretLookup func(ctx context.Context, meetingID string) (secret string, err error)

// Dispatcher delivers webhook payloads from a bounded worker pool so no
// HTTP request handler ever waits on delivery (base spec §5).
type Dispatcher struct {
	httpClient *http.Client
	store      *Store
	secrets    SecretLookup
	logger     *slog.Logger

	jobs chan *Delivery
	stop chan struct{}
}

// NewDispatcher constructs a Dispatcher with workerCount background
// delivery goroutines.
func NewDispatcher(store *Store, secrets SecretLookup, workerCount int) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 4
	}
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		store:      store,
		secrets:    secrets,
		logger:     slog.Default().With("component", "webhook-dispatcher"),
		jobs:       make(chan *Delivery, 256),
		stop:       make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		go d.worker()
	}
	return d
}

// Dispatch persists a new delivery and enqueues it for background sending.
// It returns as soon as the row is written; callers never block on HTTP.
func (d *Dispatcher) Dispatch(ctx context.Context, meetingID, url string, payload Payload) error {
	delivery, err := d.store.Insert(ctx, meetingID, url, payload)
	if err != nil {
		return fmt.Errorf("persist webhook delivery: %w", err)
	}
	select {
	case d.jobs <- delivery:
	default:
		d.logger.Warn("dispatcher queue full, delivery will be picked up by the background drain", "meeting_id", meetingID)
	}
	return nil
}

// DrainOne attempts a single persisted-but-undelivered delivery, used by the
// background task runner (pkg/tasks) to resume deliveries that outlived a
// process restart or were dropped from the in-memory queue.
func (d *Dispatcher) DrainOne(ctx context.Context, delivery *Delivery) {
	d.attempt(ctx, delivery)
}

func (d *Dispatcher) worker() {
	for {
		select {
		case <-d.stop:
			return
		case job := <-d.jobs:
			d.attempt(context.Background(), job)
		}
	}
}

// Close stops accepting new background work; in-flight attempts finish.
func (d *Dispatcher) Close() {
	close(d.stop)
}

// attempt runs up to maxAttempts delivery tries bounded by totalBudget
// (base spec §4.5, §8 property 5), recording the outcome on the Delivery
// row either way.
func (d *Dispatcher) attempt(ctx context.Context, delivery *Delivery) {
	ctx, cancel := context.WithTimeout(ctx, totalBudget)
	defer cancel()

	secret, err := d.secrets(ctx, delivery.MeetingID)
	if err != nil {
		d.logger.Warn("failed to resolve webhook secret", "meeting_id", delivery.MeetingID, "error", err)
	}

	attempts := delivery.Attempts
	for attempts < maxAttempts {
		attempts++
		err := d.send(ctx, delivery.URL, secret, delivery.Payload)
		if err == nil {
			if markErr := d.store.MarkDelivered(ctx, delivery.ID, attempts); markErr != nil {
				d.logger.Error("failed to mark webhook delivered", "id", delivery.ID, "error", markErr)
			}
			return
		}

		d.logger.Warn("webhook delivery attempt failed", "meeting_id", delivery.MeetingID, "attempt", attempts, "error", err)
		if attempts >= maxAttempts {
			next := time.Now().UTC().Add(totalBudget) // attempts are exhausted: no later drain sends this delivery again, it stays undelivered with its last error
			if markErr := d.store.MarkAttemptFailed(ctx, delivery.ID, attempts, err.Error(), next); markErr != nil {
				d.logger.Error("failed to record webhook failure", "id", delivery.ID, "error", markErr)
			}
			return
		}

		select {
		case <-time.After(backoff(attempts)):
		case <-ctx.Done():
			next := time.Now().UTC()
			_ = d.store.MarkAttemptFailed(context.Background(), delivery.ID, attempts, "delivery budget exceeded", next)
			return
		}
	}
}

func backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	jitter := time.Duration(rand.Int64N(int64(d / 2)))
	return d + jitter
}

// send resolves the destination at send time (SSRF guard), performs the
// POST, and classifies the result. Any non-2xx status or network error is
// retryable.
func (d *Dispatcher) send(ctx context.Context, url, secret string, payload Payload) error {
	if err := resolveAndGuard(url); err != nil {
		return err
	}
	return d.post(ctx, url, secret, payload)
}

// post performs the actual HTTP POST, without the SSRF guard. Split out so
// tests can exercise request construction against a loopback httptest
// server without tripping the guard meant for real deployments.
func (d *Dispatcher) post(ctx context.Context, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook destination returned %d", resp.StatusCode)
	}
	return nil
}
