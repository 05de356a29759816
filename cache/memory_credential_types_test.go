package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/fedbridge/cache"
)

func TestMemoryCredentialTypes_RoundTrip(t *testing.T) {
	c := cache.NewMemoryCredentialTypes(time.Minute)
	t.Cleanup(c.Close)
	ctx := context.Background()

	_, ok := c.Get(ctx, "abc123")
	assert.False(t, ok)

	c.Set(ctx, "abc123", []string{"password", "otp"})
	types, ok := c.Get(ctx, "abc123")
	require.True(t, ok)
	assert.Equal(t, []string{"password", "otp"}, types)
}

func TestMemoryCredentialTypes_Expiry(t *testing.T) {
	c := cache.NewMemoryCredentialTypes(20 * time.Millisecond)
	t.Cleanup(c.Close)
	ctx := context.Background()

	c.Set(ctx, "abc123", []string{"password"})
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "abc123")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
