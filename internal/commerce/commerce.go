// Package commerce holds the synced storefront data: customers, orders,
// and products pulled from each client's store.
//
// Rows are keyed by (client_id, remote_id) so repeated syncs upsert
// rather than duplicate. The store never exposes cross-client reads;
// every query is scoped to one client.
package commerce

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("commerce: not found")

// Customer is one storefront customer.
type Customer struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	RemoteID    int64      `json:"remote_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	LastOrderAt *time.Time `json:"last_order_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Name returns the customer's display name.
func (c *Customer) Name() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Order is one storefront order.
type Order struct {
	ID               string    `json:"id"`
	ClientID         string    `json:"client_id"`
	RemoteID         int64     `json:"remote_id"`
	CustomerRemoteID int64     `json:"customer_remote_id"`
	Status           string    `json:"status"`
	Total            string    `json:"total"`
	Currency         string    `json:"currency"`
	PlacedAt         time.Time `json:"placed_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Product is one storefront product.
type Product struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	RemoteID    int64     `json:"remote_id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Price       string    `json:"price"`
	StockStatus string    `json:"stock_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists synced storefront data.
type Store interface {
	// UpsertCustomers inserts or refreshes customers by (client, remote) key.
	UpsertCustomers(ctx context.Context, clientID string, customers []*Customer) error
	// UpsertOrders inserts or refreshes orders and advances each affected
	// customer's last_order_at high-water mark.
	UpsertOrders(ctx context.Context, clientID string, orders []*Order) error
	// UpsertProducts inserts or refreshes products by (client, remote) key.
	UpsertProducts(ctx context.Context, clientID string, products []*Product) error
	// CountOrders returns the number of stored orders for a client.
	CountOrders(ctx context.Context, clientID string) (int, error)
	// ListDormantCustomers returns customers whose most recent order is
	// older than the cutoff, including customers with no orders at all.
	ListDormantCustomers(ctx context.Context, clientID string, cutoff time.Time) ([]*Customer, error)
}
