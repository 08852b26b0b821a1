// Package integration provides integration tests for the component extractor.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tabletopforge/component-extractor/internal/cache"
	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

// setupRedis starts a Redis container and returns a connected cache client.
func setupRedis(t *testing.T) *cache.RedisClient {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := cache.NewRedisClient(config.RedisConfig{
		Addr:     host + ":" + port.Port(),
		PoolSize: 10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestRedisCache_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", []byte("v1"), time.Minute))

	got, err := client.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, client.Delete(ctx, "k1"))
	_, err = client.Get(ctx, "k1")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "short", []byte("v"), time.Second))

	_, err := client.Get(ctx, "short")
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	_, err = client.Get(ctx, "short")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestRedisCache_ResultRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupRedis(t)
	ctx := context.Background()

	rc := pipeline.NewResultCache(client, time.Minute, observability.Nop())
	cfg := config.DefaultConfig()
	eff := pipeline.Options{}.Normalize(cfg.Extraction)

	key := rc.Key("rulebook.pdf", eff)

	_, ok := rc.Get(ctx, key)
	assert.False(t, ok)

	stored := &pipeline.Result{
		JobID:          "job-1",
		Source:         "embedded",
		CandidateCount: 2,
		Options:        eff,
	}
	require.NoError(t, rc.Set(ctx, key, stored))

	got, ok := rc.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, stored.JobID, got.JobID)
	assert.Equal(t, stored.Source, got.Source)
	assert.Equal(t, stored.CandidateCount, got.CandidateCount)
}
