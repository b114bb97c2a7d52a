package cache

import (
	"context"
	"sync"
	"time"
)

// BalanceSnapshot is a balance as observed at FetchedAt.
type BalanceSnapshot struct {
	Asset     string    `json:"asset"`
	Balance   string    `json:"balance"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BalanceCache keeps the last observed balance per asset.
type BalanceCache interface {
	StoreBalance(ctx context.Context, snap BalanceSnapshot) error
	LastBalance(ctx context.Context, asset string) (*BalanceSnapshot, error)
}

// MemoryCache is the in-process BalanceCache used when Redis is disabled.
type MemoryCache struct {
	mu       sync.RWMutex
	balances map[string]BalanceSnapshot
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{balances: make(map[string]BalanceSnapshot)}
}

func (m *MemoryCache) StoreBalance(ctx context.Context, snap BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[snap.Asset] = snap
	return nil
}

func (m *MemoryCache) LastBalance(ctx context.Context, asset string) (*BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.balances[asset]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &snap, nil
}

var (
	_ BalanceCache = (*MemoryCache)(nil)
	_ BalanceCache = (*CacheService)(nil)
)
