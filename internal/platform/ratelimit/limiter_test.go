package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemory(3, time.Minute)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2-i, result.Remaining)
	}

	result, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestInMemoryKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemory(1, time.Minute)

	first, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := limiter.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
}

func TestInMemorySlidingWindowExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter := NewInMemory(1, time.Minute)
	limiter.clock = func() time.Time { return now }

	result, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	now = now.Add(61 * time.Second)

	result, err = limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInMemoryEvictsExpiredBuckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter := NewInMemory(5, time.Minute)
	limiter.clock = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		_, err := limiter.Allow(ctx, string(rune('a'+i%26))+string(rune('0'+i/26)))
		require.NoError(t, err)
	}
	assert.Len(t, limiter.buckets, 100)

	// After the windows expire, the next check reclaims every stale bucket
	// except the caller's own, which is repopulated.
	now = now.Add(2 * time.Minute)
	_, err := limiter.Allow(ctx, "client-fresh")
	require.NoError(t, err)
	assert.Len(t, limiter.buckets, 1)
}

func TestInMemoryReset(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemory(1, time.Minute)

	_, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)

	limiter.Reset("client-a")

	result, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
