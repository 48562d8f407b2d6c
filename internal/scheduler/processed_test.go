package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseProcessedSet(t *testing.T, set ProcessedSet) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	ok, err := set.Contains(ctx, "NFS-1", t0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, set.Add(ctx, "NFS-1", t0))
	require.NoError(t, set.Add(ctx, "NFS-2", t0.Add(time.Hour)))

	ok, err = set.Contains(ctx, "NFS-1", t0.Add(59*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Contains(ctx, "NFS-1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "entry at the window edge is expired")

	n, err := set.Sweep(ctx, t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	size, err := set.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestMemorySet(t *testing.T) {
	exerciseProcessedSet(t, NewMemorySet(time.Hour))
}

func TestMemorySetWithoutWindowNeverExpires(t *testing.T) {
	ctx := context.Background()
	set := NewMemorySet(0)
	require.NoError(t, set.Add(ctx, "NFS-1", time.Unix(0, 0)))
	ok, _ := set.Contains(ctx, "NFS-1", time.Now())
	assert.True(t, ok)
	n, _ := set.Sweep(ctx, time.Now())
	assert.Zero(t, n)
}

func TestRedisSetIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "triage:processed:test:" + time.Now().Format("150405.000000")
	set, err := NewRedisSet(ctx, RedisOptions{Addr: addr, Key: key, Window: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() {
		client := redis.NewClient(&redis.Options{Addr: addr})
		client.Del(context.Background(), key)
		_ = client.Close()
		_ = set.Close()
	})
	exerciseProcessedSet(t, set)
}
