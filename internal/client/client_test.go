package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	c := &Client{
		ID:         "cl_1",
		Name:       "Corner Shop",
		Email:      "owner@corner.example",
		StoreURL:   "https://corner.example",
		SyncStatus: SyncPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	// Create
	err := store.Create(ctx, c)
	require.NoError(t, err)

	// Get by ID
	got, err := store.Get(ctx, "cl_1")
	require.NoError(t, err)
	assert.Equal(t, "Corner Shop", got.Name)
	assert.Equal(t, SyncPending, got.SyncStatus)

	// Get by email
	got, err = store.GetByEmail(ctx, "owner@corner.example")
	require.NoError(t, err)
	assert.Equal(t, "cl_1", got.ID)

	// Update
	got.IsLoggedIn = true
	err = store.Update(ctx, got)
	require.NoError(t, err)

	got2, _ := store.Get(ctx, "cl_1")
	assert.True(t, got2.IsLoggedIn)
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Update(ctx, &Client{ID: "nonexistent"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UpdateSyncStatus(ctx, "nonexistent", SyncInProgress, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Create(ctx, &Client{ID: "cl_1", Email: "dup@example.com"})
	err := store.Create(ctx, &Client{ID: "cl_2", Email: "dup@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestMemoryStore_UpdateSyncStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Create(ctx, &Client{ID: "cl_1", Email: "a@example.com", SyncStatus: SyncPending})

	// Start of onboarding: no timestamp.
	err := store.UpdateSyncStatus(ctx, "cl_1", SyncInProgress, nil)
	require.NoError(t, err)
	got, _ := store.Get(ctx, "cl_1")
	assert.Equal(t, SyncInProgress, got.SyncStatus)
	assert.Nil(t, got.LastSyncedAt)

	// Finalize: COMPLETE stamps last_synced_at.
	now := time.Now()
	err = store.UpdateSyncStatus(ctx, "cl_1", SyncComplete, &now)
	require.NoError(t, err)
	got, _ = store.Get(ctx, "cl_1")
	assert.Equal(t, SyncComplete, got.SyncStatus)
	require.NotNil(t, got.LastSyncedAt)
	assert.WithinDuration(t, now, *got.LastSyncedAt, time.Second)

	// Re-sync: back to IN_PROGRESS, timestamp preserved.
	err = store.UpdateSyncStatus(ctx, "cl_1", SyncInProgress, nil)
	require.NoError(t, err)
	got, _ = store.Get(ctx, "cl_1")
	assert.Equal(t, SyncInProgress, got.SyncStatus)
	assert.NotNil(t, got.LastSyncedAt)
}

func TestMemoryStore_ListSyncEligible(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Logged in with full credentials: eligible.
	_ = store.Create(ctx, &Client{
		ID: "cl_a", Email: "a@example.com", IsLoggedIn: true,
		StoreURL: "https://a.example", ConsumerKey: "sealed-ck", ConsumerSecret: "sealed-cs",
	})
	// Not logged in: not eligible.
	_ = store.Create(ctx, &Client{
		ID: "cl_b", Email: "b@example.com", IsLoggedIn: false,
		StoreURL: "https://b.example", ConsumerKey: "sealed-ck", ConsumerSecret: "sealed-cs",
	})
	// Missing credentials: not eligible.
	_ = store.Create(ctx, &Client{
		ID: "cl_c", Email: "c@example.com", IsLoggedIn: true,
		StoreURL: "https://c.example",
	})

	eligible, err := store.ListSyncEligible(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "cl_a", eligible[0].ID)
}

func TestMemoryStore_GetByToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	hash := HashToken("sk_secret")
	_ = store.Create(ctx, &Client{ID: "cl_1", Email: "a@example.com", TokenHash: hash})
	_ = store.Create(ctx, &Client{ID: "cl_2", Email: "b@example.com"})

	got, err := store.GetByToken(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "cl_1", got.ID)

	_, err = store.GetByToken(ctx, HashToken("sk_other"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Clients with no issued token never match an empty hash.
	_, err = store.GetByToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// Clearing the hash revokes the token.
	got.TokenHash = ""
	require.NoError(t, store.Update(ctx, got))
	_, err = store.GetByToken(ctx, hash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_FirstSync(t *testing.T) {
	c := &Client{}
	assert.True(t, c.FirstSync())

	now := time.Now()
	c.LastSyncedAt = &now
	assert.False(t, c.FirstSync())
}
