package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCredentialTypes is the in-process CredentialTypes implementation.
type MemoryCredentialTypes struct {
	cache *ttlcache.Cache[string, []string]
}

// NewMemoryCredentialTypes creates a memory cache whose entries expire after
// ttl. A ttl of zero falls back to DefaultCredentialTypeTTL.
func NewMemoryCredentialTypes(ttl time.Duration) *MemoryCredentialTypes {
	if ttl <= 0 {
		ttl = DefaultCredentialTypeTTL
	}
	c := ttlcache.New(
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	)
	go c.Start()
	return &MemoryCredentialTypes{cache: c}
}

func (m *MemoryCredentialTypes) Get(_ context.Context, remoteID string) ([]string, bool) {
	item := m.cache.Get(remoteID)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

func (m *MemoryCredentialTypes) Set(_ context.Context, remoteID string, types []string) {
	m.cache.Set(remoteID, types, ttlcache.DefaultTTL)
}

// Close stops the expiration loop.
func (m *MemoryCredentialTypes) Close() {
	m.cache.Stop()
}

var _ CredentialTypes = (*MemoryCredentialTypes)(nil)
