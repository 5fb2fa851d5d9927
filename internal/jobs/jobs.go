// Package jobs maps queue job types to their handlers.
//
// Handlers are registered explicitly at startup; an unknown job type is a
// permanent failure, not a silent drop. Each handler opens the client's
// sealed store credentials only for the duration of the fetch and never
// persists or logs them in the clear.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/storesync/internal/circuitbreaker"
	"github.com/mbd888/storesync/internal/client"
	"github.com/mbd888/storesync/internal/commerce"
	"github.com/mbd888/storesync/internal/queue"
	"github.com/mbd888/storesync/internal/secrets"
	"github.com/mbd888/storesync/internal/woo"
)

// Handler executes one job.
type Handler func(ctx context.Context, job *queue.Job) error

// Registry routes job types to handlers.
type Registry struct {
	handlers map[queue.JobType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[queue.JobType]Handler)}
}

// Register binds a handler to a job type. Registering a type twice is a
// programming error.
func (r *Registry) Register(t queue.JobType, h Handler) {
	if _, dup := r.handlers[t]; dup {
		panic(fmt.Sprintf("jobs: duplicate handler for %q", t))
	}
	r.handlers[t] = h
}

// Handle runs the handler for the job's type.
func (r *Registry) Handle(ctx context.Context, job *queue.Job) error {
	h, ok := r.handlers[job.Type]
	if !ok {
		return fmt.Errorf("jobs: no handler for type %q", job.Type)
	}
	return h(ctx, job)
}

// StoreAPI is the slice of the storefront API the handlers use.
// *woo.Client satisfies it.
type StoreAPI interface {
	FetchCustomers(ctx context.Context) ([]*commerce.Customer, error)
	FetchOrders(ctx context.Context, since *time.Time) ([]*commerce.Order, error)
	FetchProducts(ctx context.Context) ([]*commerce.Product, error)
}

// APIFactory builds a storefront API client from opened credentials.
type APIFactory func(storeURL, consumerKey, consumerSecret string) StoreAPI

// WooFactory is the production APIFactory.
func WooFactory(storeURL, consumerKey, consumerSecret string) StoreAPI {
	return woo.New(storeURL, consumerKey, consumerSecret)
}

// ErrStoreTripped means a client's storefront API has failed repeatedly
// and its circuit is open; fetches are skipped until the probe window.
var ErrStoreTripped = errors.New("jobs: store circuit open")

// Handlers holds the dependencies shared by all job handlers.
type Handlers struct {
	clients  client.Store
	commerce commerce.Store
	codec    *secrets.Codec
	api      APIFactory
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// NewHandlers creates the handler set. Fetches trip a per-store circuit
// breaker so a dead storefront stops burning worker time.
func NewHandlers(clients client.Store, commerceStore commerce.Store, codec *secrets.Codec,
	api APIFactory, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if api == nil {
		api = WooFactory
	}
	return &Handlers{
		clients:  clients,
		commerce: commerceStore,
		codec:    codec,
		api:      api,
		breaker:  circuitbreaker.New(5, 5*time.Minute),
		logger:   logger,
	}
}

// RegisterAll binds every handler into the registry.
func (h *Handlers) RegisterAll(r *Registry) {
	r.Register(queue.JobFetchProducts, h.FetchProducts)
	r.Register(queue.JobFetchOrders, h.FetchOrders)
	r.Register(queue.JobFinalizeOnboarding, h.FinalizeOnboarding)
}

// openAPI loads the client and unseals its credentials into an API client.
func (h *Handlers) openAPI(ctx context.Context, clientID string) (*client.Client, StoreAPI, error) {
	c, err := h.clients.Get(ctx, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("jobs: load client %s: %w", clientID, err)
	}
	key, err := h.codec.Open(c.ConsumerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("jobs: unseal consumer key for %s: %w", clientID, err)
	}
	secret, err := h.codec.Open(c.ConsumerSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("jobs: unseal consumer secret for %s: %w", clientID, err)
	}
	return c, h.api(c.StoreURL, key, secret), nil
}

// FetchProducts pulls the client's product catalog into the local store.
func (h *Handlers) FetchProducts(ctx context.Context, job *queue.Job) error {
	if !h.breaker.Allow(job.ClientID) {
		return fmt.Errorf("%w: client %s", ErrStoreTripped, job.ClientID)
	}

	_, api, err := h.openAPI(ctx, job.ClientID)
	if err != nil {
		return err
	}

	products, err := api.FetchProducts(ctx)
	if err != nil {
		h.breaker.RecordFailure(job.ClientID)
		return fmt.Errorf("jobs: fetch products for %s: %w", job.ClientID, err)
	}
	h.breaker.RecordSuccess(job.ClientID)
	if err := h.commerce.UpsertProducts(ctx, job.ClientID, products); err != nil {
		return fmt.Errorf("jobs: store products for %s: %w", job.ClientID, err)
	}

	h.logger.Info("products synced", "client_id", job.ClientID, "count", len(products))
	return nil
}

// FetchOrders pulls orders into the local store. A full fetch also pulls
// the customer list so campaign targeting has contact data; incremental
// fetches start from the client's last sync mark.
func (h *Handlers) FetchOrders(ctx context.Context, job *queue.Job) error {
	if !h.breaker.Allow(job.ClientID) {
		return fmt.Errorf("%w: client %s", ErrStoreTripped, job.ClientID)
	}

	c, api, err := h.openAPI(ctx, job.ClientID)
	if err != nil {
		return err
	}

	full := job.FullFetch || c.FirstSync()
	if full {
		customers, err := api.FetchCustomers(ctx)
		if err != nil {
			h.breaker.RecordFailure(job.ClientID)
			return fmt.Errorf("jobs: fetch customers for %s: %w", job.ClientID, err)
		}
		if err := h.commerce.UpsertCustomers(ctx, job.ClientID, customers); err != nil {
			return fmt.Errorf("jobs: store customers for %s: %w", job.ClientID, err)
		}
	}

	var since *time.Time
	if !full {
		since = c.LastSyncedAt
	}
	orders, err := api.FetchOrders(ctx, since)
	if err != nil {
		h.breaker.RecordFailure(job.ClientID)
		return fmt.Errorf("jobs: fetch orders for %s: %w", job.ClientID, err)
	}
	h.breaker.RecordSuccess(job.ClientID)
	if err := h.commerce.UpsertOrders(ctx, job.ClientID, orders); err != nil {
		return fmt.Errorf("jobs: store orders for %s: %w", job.ClientID, err)
	}

	count, err := h.commerce.CountOrders(ctx, job.ClientID)
	if err == nil && count != c.OrdersCount {
		c.OrdersCount = count
		if err := h.clients.Update(ctx, c); err != nil {
			h.logger.Warn("could not refresh orders count", "client_id", c.ID, "error", err)
		}
	}

	h.logger.Info("orders synced", "client_id", job.ClientID, "full", full, "count", len(orders))
	return nil
}

// FinalizeOnboarding is the chain callback. A successful chain marks the
// client COMPLETE and stamps the sync time; a failed chain only logs —
// the client stays in its current state so the next scan retries it.
func (h *Handlers) FinalizeOnboarding(ctx context.Context, job *queue.Job) error {
	if job.ChainOK == nil || !*job.ChainOK {
		h.logger.Warn("onboarding chain failed, leaving sync status unchanged",
			"client_id", job.ClientID, "chain_id", job.ChainID)
		return nil
	}

	now := time.Now()
	if err := h.clients.UpdateSyncStatus(ctx, job.ClientID, client.SyncComplete, &now); err != nil {
		return fmt.Errorf("jobs: finalize onboarding for %s: %w", job.ClientID, err)
	}
	h.logger.Info("onboarding complete", "client_id", job.ClientID, "chain_id", job.ChainID)
	return nil
}
