package client

import (
	"context"
	"time"
)

// Store persists client data.
//
// UpdateSyncStatus is deliberately a whole-value write: drivers always write
// the terminal status they observed, never a diff, so overlapping sync
// triggers degrade to last-write-wins rather than a corrupted row.
type Store interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, id string) (*Client, error)
	GetByEmail(ctx context.Context, email string) (*Client, error)

	// GetByToken resolves a client by the hash of its current API token.
	// Clients with no issued token never match.
	GetByToken(ctx context.Context, tokenHash string) (*Client, error)

	Update(ctx context.Context, c *Client) error

	// UpdateSyncStatus sets sync_status and, when syncedAt is non-nil,
	// last_synced_at for a single client row.
	UpdateSyncStatus(ctx context.Context, id string, status SyncStatus, syncedAt *time.Time) error

	// ListSyncEligible returns clients that are logged in and carry a
	// complete credential set (store URL, consumer key, consumer secret).
	ListSyncEligible(ctx context.Context) ([]*Client, error)
}
