package client

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory client store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*Client // by ID
	emails  map[string]string  // email → ID
}

// NewMemoryStore creates a new in-memory client store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*Client),
		emails:  make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[c.Email]; exists {
		return ErrEmailTaken
	}

	cp := *c
	m.clients[c.ID] = &cp
	m.emails[c.Email] = c.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	c := m.clients[id]
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetByToken(_ context.Context, tokenHash string) (*Client, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if c.TokenHash == tokenHash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(_ context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	m.clients[c.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateSyncStatus(_ context.Context, id string, status SyncStatus, syncedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return ErrNotFound
	}
	c.SyncStatus = status
	if syncedAt != nil {
		t := *syncedAt
		c.LastSyncedAt = &t
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListSyncEligible(_ context.Context) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var eligible []*Client
	for _, c := range m.clients {
		if c.SyncEligible() {
			cp := *c
			eligible = append(eligible, &cp)
		}
	}
	return eligible, nil
}

var _ Store = (*MemoryStore)(nil)
