// Package scan implements the periodic discovery scans that keep every
// eligible client's data in sync.
//
// Two scans run on independent cadences: a frequent order scan and a slow
// product scan. Each scan walks the sync-eligible clients and enqueues one
// job per client; a failure to enqueue for one client never aborts the
// rest of the scan. Jobs carry an expiry so a slow broker sheds stale
// scan work instead of building a backlog.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/storesync/internal/client"
	"github.com/mbd888/storesync/internal/metrics"
	"github.com/mbd888/storesync/internal/queue"
)

// Priorities for scan-enqueued jobs; lower runs first. A client's first
// full order fetch outranks routine incremental fetches.
const (
	priorityFullFetch   = 0
	priorityIncremental = 5
	priorityProducts    = 5
)

// Entry is a declarative schedule item consumed by the worker's cron
// runner. The driver only defines what each scheduled callable does.
type Entry struct {
	Name string
	Spec string // robfig/cron expression, e.g. "@every 1m"
	Run  func(ctx context.Context) error
}

// Driver runs the discovery scans.
type Driver struct {
	clients       client.Store
	broker        queue.Broker
	logger        *slog.Logger
	orderExpiry   time.Duration
	productExpiry time.Duration
}

// NewDriver creates a discovery driver.
func NewDriver(clients client.Store, broker queue.Broker, logger *slog.Logger,
	orderExpiry, productExpiry time.Duration) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		clients:       clients,
		broker:        broker,
		logger:        logger,
		orderExpiry:   orderExpiry,
		productExpiry: productExpiry,
	}
}

// Entries returns the two named schedules with the given cron specs.
func (d *Driver) Entries(orderSpec, productSpec string) []Entry {
	return []Entry{
		{Name: "order-scan", Spec: orderSpec, Run: d.ScanOrders},
		{Name: "product-scan", Spec: productSpec, Run: d.ScanProducts},
	}
}

// ScanOrders enqueues a fetch_orders job for every sync-eligible client.
// A client that has never synced gets a full fetch at the highest
// priority; everyone else gets an incremental fetch.
func (d *Driver) ScanOrders(ctx context.Context) error {
	metrics.ScansTotal.WithLabelValues("orders").Inc()

	clients, err := d.clients.ListSyncEligible(ctx)
	if err != nil {
		return fmt.Errorf("scan: list eligible clients: %w", err)
	}
	if len(clients) == 0 {
		d.logger.Debug("no eligible clients, skipping order scan")
		return nil
	}

	enqueued := 0
	for _, c := range clients {
		full := c.FirstSync()
		priority := priorityIncremental
		if full {
			priority = priorityFullFetch
		}

		_, err := d.broker.Submit(ctx, &queue.Job{
			Type:      queue.JobFetchOrders,
			ClientID:  c.ID,
			FullFetch: full,
		}, queue.SubmitOptions{Priority: priority, Expiry: d.orderExpiry})
		if err != nil {
			// Partial failure is expected; the next scan retries.
			metrics.ScanEnqueueFailures.WithLabelValues("orders").Inc()
			d.logger.Warn("could not enqueue order sync", "client_id", c.ID, "error", err)
			continue
		}
		metrics.JobsEnqueuedTotal.WithLabelValues(string(queue.JobFetchOrders)).Inc()
		enqueued++
	}

	d.logger.Info("order scan complete", "eligible", len(clients), "enqueued", enqueued)
	return nil
}

// ScanProducts enqueues a fetch_products job for every sync-eligible
// client at a fixed low priority.
func (d *Driver) ScanProducts(ctx context.Context) error {
	metrics.ScansTotal.WithLabelValues("products").Inc()

	clients, err := d.clients.ListSyncEligible(ctx)
	if err != nil {
		return fmt.Errorf("scan: list eligible clients: %w", err)
	}
	if len(clients) == 0 {
		d.logger.Debug("no eligible clients, skipping product scan")
		return nil
	}

	enqueued := 0
	for _, c := range clients {
		_, err := d.broker.Submit(ctx, &queue.Job{
			Type:     queue.JobFetchProducts,
			ClientID: c.ID,
		}, queue.SubmitOptions{Priority: priorityProducts, Expiry: d.productExpiry})
		if err != nil {
			metrics.ScanEnqueueFailures.WithLabelValues("products").Inc()
			d.logger.Warn("could not enqueue product sync", "client_id", c.ID, "error", err)
			continue
		}
		metrics.JobsEnqueuedTotal.WithLabelValues(string(queue.JobFetchProducts)).Inc()
		enqueued++
	}

	d.logger.Info("product scan complete", "eligible", len(clients), "enqueued", enqueued)
	return nil
}
