package commerce

import (
	"context"
	"sync"
	"time"

	"github.com/mbd888/storesync/internal/idgen"
)

type remoteKey struct {
	clientID string
	remoteID int64
}

// MemoryStore is an in-memory commerce store for demo/development.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[remoteKey]*Customer
	orders    map[remoteKey]*Order
	products  map[remoteKey]*Product
}

// NewMemoryStore creates a new in-memory commerce store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[remoteKey]*Customer),
		orders:    make(map[remoteKey]*Order),
		products:  make(map[remoteKey]*Product),
	}
}

func (m *MemoryStore) UpsertCustomers(_ context.Context, clientID string, customers []*Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, c := range customers {
		key := remoteKey{clientID, c.RemoteID}
		cp := *c
		cp.ClientID = clientID
		cp.UpdatedAt = now
		if existing, ok := m.customers[key]; ok {
			cp.ID = existing.ID
			cp.CreatedAt = existing.CreatedAt
			// Upserts never move the order high-water mark backwards.
			if cp.LastOrderAt == nil {
				cp.LastOrderAt = existing.LastOrderAt
			}
		} else {
			cp.ID = idgen.WithPrefix("cu_")
			cp.CreatedAt = now
		}
		m.customers[key] = &cp
	}
	return nil
}

func (m *MemoryStore) UpsertOrders(_ context.Context, clientID string, orders []*Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, o := range orders {
		key := remoteKey{clientID, o.RemoteID}
		cp := *o
		cp.ClientID = clientID
		cp.UpdatedAt = now
		if existing, ok := m.orders[key]; ok {
			cp.ID = existing.ID
			cp.CreatedAt = existing.CreatedAt
		} else {
			cp.ID = idgen.WithPrefix("or_")
			cp.CreatedAt = now
		}
		m.orders[key] = &cp

		if cust, ok := m.customers[remoteKey{clientID, o.CustomerRemoteID}]; ok {
			if cust.LastOrderAt == nil || cust.LastOrderAt.Before(o.PlacedAt) {
				t := o.PlacedAt
				cust.LastOrderAt = &t
				cust.UpdatedAt = now
			}
		}
	}
	return nil
}

func (m *MemoryStore) UpsertProducts(_ context.Context, clientID string, products []*Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, p := range products {
		key := remoteKey{clientID, p.RemoteID}
		cp := *p
		cp.ClientID = clientID
		cp.UpdatedAt = now
		if existing, ok := m.products[key]; ok {
			cp.ID = existing.ID
			cp.CreatedAt = existing.CreatedAt
		} else {
			cp.ID = idgen.WithPrefix("pr_")
			cp.CreatedAt = now
		}
		m.products[key] = &cp
	}
	return nil
}

func (m *MemoryStore) CountOrders(_ context.Context, clientID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for key := range m.orders {
		if key.clientID == clientID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListDormantCustomers(_ context.Context, clientID string, cutoff time.Time) ([]*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var dormant []*Customer
	for key, c := range m.customers {
		if key.clientID != clientID {
			continue
		}
		if c.LastOrderAt == nil || c.LastOrderAt.Before(cutoff) {
			cp := *c
			dormant = append(dormant, &cp)
		}
	}
	return dormant, nil
}

var _ Store = (*MemoryStore)(nil)
