package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/fedbridge/cache"
)

// CredentialTypes implements cache.CredentialTypes on Redis, for deployments
// running more than one bridge replica against the same remote realm.
type CredentialTypes struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCredentialTypes creates a Redis-backed credential-type cache. The
// client is owned by the caller and is not closed by Close.
func NewCredentialTypes(client *redis.Client, prefix string, ttl time.Duration) *CredentialTypes {
	if ttl <= 0 {
		ttl = cache.DefaultCredentialTypeTTL
	}
	return &CredentialTypes{client: client, prefix: prefix, ttl: ttl}
}

func (r *CredentialTypes) redisKey(remoteID string) string {
	return fmt.Sprintf("%s:credential-types:%s", r.prefix, remoteID)
}

func (r *CredentialTypes) Get(ctx context.Context, remoteID string) ([]string, bool) {
	raw, err := r.client.Get(ctx, r.redisKey(remoteID)).Result()
	if err != nil {
		return nil, false
	}
	var types []string
	if err := json.Unmarshal([]byte(raw), &types); err != nil {
		return nil, false
	}
	return types, true
}

func (r *CredentialTypes) Set(ctx context.Context, remoteID string, types []string) {
	raw, err := json.Marshal(types)
	if err != nil {
		return
	}
	r.client.Set(ctx, r.redisKey(remoteID), raw, r.ttl)
}

// Close is a no-op; the Redis client outlives any single bridge.
func (r *CredentialTypes) Close() {}

var _ cache.CredentialTypes = (*CredentialTypes)(nil)
