package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/storesync/internal/client"
	"github.com/mbd888/storesync/internal/commerce"
)

// Campaign sends win-back messages to customers who have gone quiet.
//
// For every sync-eligible client it targets customers whose most recent
// order is older than the cutoff age and delivers one message per
// configured language. One client's failure does not stop the others.
type Campaign struct {
	clients    client.Store
	commerce   commerce.Store
	dispatcher *Dispatcher
	logger     *slog.Logger
	cutoffAge  time.Duration
	languages  []string
}

// NewCampaign creates the win-back campaign.
func NewCampaign(clients client.Store, commerceStore commerce.Store, dispatcher *Dispatcher,
	logger *slog.Logger, cutoffAge time.Duration, languages []string) *Campaign {
	if logger == nil {
		logger = slog.Default()
	}
	return &Campaign{
		clients:    clients,
		commerce:   commerceStore,
		dispatcher: dispatcher,
		logger:     logger,
		cutoffAge:  cutoffAge,
		languages:  languages,
	}
}

// Run executes one campaign pass over all eligible clients.
func (c *Campaign) Run(ctx context.Context) error {
	eligible, err := c.clients.ListSyncEligible(ctx)
	if err != nil {
		return fmt.Errorf("campaign: list eligible clients: %w", err)
	}

	cutoff := time.Now().Add(-c.cutoffAge)
	for _, cl := range eligible {
		dormant, err := c.commerce.ListDormantCustomers(ctx, cl.ID, cutoff)
		if err != nil {
			c.logger.Error("could not list dormant customers", "client_id", cl.ID, "error", err)
			continue
		}
		if len(dormant) == 0 {
			continue
		}

		recipients := make([]Recipient, 0, len(dormant))
		for _, cust := range dormant {
			recipients = append(recipients, Recipient{
				CustomerID: cust.ID,
				Name:       cust.Name(),
				Phone:      cust.Phone,
			})
		}

		outcomes := c.dispatcher.Dispatch(ctx, recipients, c.languages)
		c.logger.Info("win-back campaign sent",
			"client_id", cl.ID, "targets", len(recipients), "outcomes", len(outcomes))
	}
	return nil
}
