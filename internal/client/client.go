// Package client provides the tenant model for the storesync platform.
//
// A client is a registered merchant whose store data (products, orders,
// customers) is synchronized into the local database by background jobs.
package client

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Errors
var (
	ErrNotFound   = errors.New("client: not found")
	ErrEmailTaken = errors.New("client: email already registered")
)

// SyncStatus is the lifecycle state of a client's data sync.
//
// PENDING is assigned at registration. IN_PROGRESS is entered when an
// onboarding or sync workflow starts. COMPLETE is entered only by the
// finalize callback of a successful onboarding chain and stamps
// LastSyncedAt. A client may re-enter IN_PROGRESS on any later sync
// trigger. FAILED exists in the schema but no flow assigns it
// automatically; see DESIGN.md.
type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncInProgress SyncStatus = "IN_PROGRESS"
	SyncComplete   SyncStatus = "COMPLETE"
	SyncFailed     SyncStatus = "FAILED"
)

// Client represents a registered merchant account.
//
// ConsumerKey and ConsumerSecret hold sealed (encrypted) values as produced
// by secrets.Codec. They are never stored or logged in the clear; opening
// them is an explicit act by the store API client.
type Client struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	HashedPassword string     `json:"-"`
	StoreURL       string     `json:"storeUrl"`
	ConsumerKey    string     `json:"-"` // sealed
	ConsumerSecret string     `json:"-"` // sealed
	TokenHash      string     `json:"-"` // SHA-256 of the current API token
	IsActive       bool       `json:"isActive"`
	IsLoggedIn     bool       `json:"isLoggedIn"`
	LastLoginTime  *time.Time `json:"lastLoginTime,omitempty"`
	SyncStatus     SyncStatus `json:"syncStatus"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt,omitempty"`
	OrdersCount    int        `json:"ordersCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HashToken returns the hex SHA-256 digest of an API token. Stores hold
// only the digest; the token itself is shown once, at issue time.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SyncEligible reports whether the periodic discovery scans should enqueue
// sync jobs for this client: logged in with a complete credential set.
func (c *Client) SyncEligible() bool {
	return c.IsLoggedIn && c.StoreURL != "" && c.ConsumerKey != "" && c.ConsumerSecret != ""
}

// FirstSync reports whether the client has never completed a sync.
// First syncs fetch the full order history at the highest priority.
func (c *Client) FirstSync() bool {
	return c.LastSyncedAt == nil
}
