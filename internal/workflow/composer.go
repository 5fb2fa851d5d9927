// Package workflow composes ordered job chains for client onboarding.
package workflow

import (
	"context"
	"log/slog"

	"github.com/mbd888/storesync/internal/queue"
)

// Composer builds and submits the onboarding chain. Once submitted the
// broker owns the chain entirely; the composer keeps no reference beyond
// the returned handle.
type Composer struct {
	broker queue.Broker
	logger *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(broker queue.Broker, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{broker: broker, logger: logger}
}

// ComposeOnboarding submits fetch_products → fetch_orders(full) with a
// finalize callback for the given client and returns the chain handle.
//
// The broker guarantees fetch_orders is never dispatched before
// fetch_products reports success, and that the finalize callback fires
// exactly once with the chain outcome — so finalize can never mark a
// client complete off a broken chain.
func (c *Composer) ComposeOnboarding(ctx context.Context, clientID string) (string, error) {
	steps := []*queue.Job{
		{Type: queue.JobFetchProducts, ClientID: clientID},
		{Type: queue.JobFetchOrders, ClientID: clientID, FullFetch: true},
	}
	callback := &queue.Job{Type: queue.JobFinalizeOnboarding, ClientID: clientID}

	handle, err := c.broker.SubmitChain(ctx, steps, callback)
	if err != nil {
		return "", err
	}

	c.logger.Info("onboarding workflow queued", "client_id", clientID, "chain", handle)
	return handle, nil
}
