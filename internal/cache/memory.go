// Package cache provides account lookup caches keyed by region.
package cache

import (
	"context"
	"sync"
	"time"

	"filmbase.org/internal/account"
)

var _ account.Cache = (*Memory)(nil)

type entry struct {
	acct    account.Account
	expires time.Time
}

// Memory is a process-local cache. Entries expire after ttl; a zero ttl
// keeps them until evicted.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	regions map[account.Region]map[string]entry
}

// NewMemory returns an empty cache.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		regions: make(map[account.Region]map[string]entry),
	}
}

func (m *Memory) Get(_ context.Context, region account.Region, key string) (*account.Account, bool) {
	m.mu.RLock()
	e, ok := m.regions[region][key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		if cur, ok := m.regions[region][key]; ok && cur.expires.Equal(e.expires) {
			delete(m.regions[region], key)
		}
		m.mu.Unlock()
		return nil, false
	}
	out := e.acct.Clone()
	return &out, true
}

func (m *Memory) Put(_ context.Context, region account.Region, key string, acct *account.Account) {
	if acct == nil {
		return
	}
	e := entry{acct: acct.Clone()}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[region]
	if !ok {
		r = make(map[string]entry)
		m.regions[region] = r
	}
	r[key] = e
}

func (m *Memory) Evict(_ context.Context, region account.Region, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions[region], key)
	return nil
}

// Len reports the number of live and expired entries held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.regions {
		n += len(r)
	}
	return n
}
