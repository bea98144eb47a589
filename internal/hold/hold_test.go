package hold

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func TestAcquireAndRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	h := NewDateHold(client, time.Minute)
	ctx := context.Background()

	ok, err := h.Acquire(ctx, "prod-1", "2026-09-12", "booking-1")
	require.NoError(t, err)
	assert.True(t, ok, "first hold should succeed")

	// Second booking for the same slot is refused
	ok, err = h.Acquire(ctx, "prod-1", "2026-09-12", "booking-2")
	require.NoError(t, err)
	assert.False(t, ok, "slot is already held")

	// Different date on the same product is independent
	ok, err = h.Acquire(ctx, "prod-1", "2026-09-13", "booking-2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.Release(ctx, "prod-1", "2026-09-12", "booking-1"))

	ok, err = h.Acquire(ctx, "prod-1", "2026-09-12", "booking-3")
	require.NoError(t, err)
	assert.True(t, ok, "slot should be free after release")
}

func TestReleaseOnlyReleasesOwnHold(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	h := NewDateHold(client, time.Minute)
	ctx := context.Background()

	ok, err := h.Acquire(ctx, "prod-1", "2026-09-12", "booking-1")
	require.NoError(t, err)
	require.True(t, ok)

	// A foreign release must not free the slot
	require.NoError(t, h.Release(ctx, "prod-1", "2026-09-12", "booking-2"))

	val, err := client.Get(ctx, "date_hold:prod-1:2026-09-12").Result()
	require.NoError(t, err)
	assert.Equal(t, "booking-1", val, "hold should still belong to booking-1")

	available, err := h.CheckAvailability(ctx, "prod-1", "2026-09-12")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestHoldExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	h := NewDateHold(client, time.Minute)
	ctx := context.Background()

	ok, err := h.Acquire(ctx, "prod-1", "2026-09-12", "booking-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	available, err := h.CheckAvailability(ctx, "prod-1", "2026-09-12")
	require.NoError(t, err)
	assert.True(t, available, "hold should have expired")

	// Releasing the expired hold is harmless
	require.NoError(t, h.Release(ctx, "prod-1", "2026-09-12", "booking-1"))
}

func TestConcurrentAcquire_SingleWinner(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)

	h := NewDateHold(client, time.Minute)
	ctx := context.Background()

	const numGoroutines = 20
	var wg sync.WaitGroup
	winners := 0
	var mu sync.Mutex

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := h.Acquire(ctx, "prod-hot", "2026-10-01", fmt.Sprintf("booking-%d", n))
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one booking should win the slot")
}
