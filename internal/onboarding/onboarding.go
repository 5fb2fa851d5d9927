// Package onboarding drives the sync workflow for newly registered clients.
//
// Registration must never fail because the job broker is down: submission
// is retried a bounded number of times and then abandoned, leaving the
// periodic discovery scans to pick the client up later.
package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/storesync/internal/client"
	"github.com/mbd888/storesync/internal/queue"
	"github.com/mbd888/storesync/internal/retry"
	"github.com/mbd888/storesync/internal/workflow"
)

// Submission retry policy for a transiently unreachable broker.
const (
	maxSubmitAttempts = 5
	submitBackoff     = 2 * time.Second
)

// Driver orchestrates client onboarding and login-triggered syncs.
type Driver struct {
	clients  client.Store
	composer *workflow.Composer
	broker   queue.Broker
	logger   *slog.Logger

	// sleep is swapped out in tests to fast-forward the fixed backoff.
	sleep retry.SleepFunc
}

// Option configures a Driver.
type Option func(*Driver)

// WithSleep overrides the backoff sleep (tests).
func WithSleep(s retry.SleepFunc) Option {
	return func(d *Driver) { d.sleep = s }
}

// NewDriver creates an onboarding driver.
func NewDriver(clients client.Store, composer *workflow.Composer, broker queue.Broker, logger *slog.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{clients: clients, composer: composer, broker: broker, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Onboard marks the client IN_PROGRESS and submits the onboarding chain.
// Returns the chain handle, or "" when submission could not be completed —
// the caller's registration still succeeds either way.
//
// Safe to call more than once for the same client: the status write is
// last-write-wins and duplicate chains are well-defined (the broker keeps
// them independent).
func (d *Driver) Onboard(ctx context.Context, clientID string) string {
	if err := d.clients.UpdateSyncStatus(ctx, clientID, client.SyncInProgress, nil); err != nil {
		// Status is recovered by the finalize callback; keep going.
		d.logger.Warn("could not mark sync in progress", "client_id", clientID, "error", err)
	}

	var handle string
	err := retry.DoFixed(ctx, maxSubmitAttempts, submitBackoff, d.sleep, func() error {
		h, err := d.composer.ComposeOnboarding(ctx, clientID)
		if err != nil {
			if errors.Is(err, queue.ErrBrokerUnavailable) {
				d.logger.Warn("broker unavailable, retrying onboarding submission", "client_id", clientID)
				return err
			}
			// JobRejected and anything else is permanent for this submission.
			return retry.Permanent(err)
		}
		handle = h
		return nil
	})
	if err != nil {
		d.logger.Warn("onboarding submission abandoned, periodic sync will recover",
			"client_id", clientID, "error", err)
		return ""
	}

	return handle
}

// TriggerIncrementalSync enqueues a single fetch_orders job for the client
// on login. Best-effort: every failure is swallowed and logged, the login
// itself never fails.
func (d *Driver) TriggerIncrementalSync(ctx context.Context, clientID string) {
	c, err := d.clients.Get(ctx, clientID)
	if err != nil {
		d.logger.Warn("incremental sync skipped", "client_id", clientID, "error", err)
		return
	}
	if !c.SyncEligible() {
		return
	}

	full := c.FirstSync()
	priority := 5
	if full {
		priority = 0
	}

	_, err = d.broker.Submit(ctx, &queue.Job{
		Type:      queue.JobFetchOrders,
		ClientID:  clientID,
		FullFetch: full,
	}, queue.SubmitOptions{Priority: priority})
	if err != nil {
		d.logger.Warn("could not enqueue login sync", "client_id", clientID, "error", err)
		return
	}

	d.logger.Info("login sync enqueued", "client_id", clientID, "full_fetch", full)
}

// Status exposes broker status polling for onboarding handles.
func (d *Driver) Status(ctx context.Context, handle string) (queue.Status, error) {
	return d.broker.Status(ctx, handle)
}
