package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/pkg/platform/circuit"
	"fleetguard/pkg/platform/sentinel"
)

// flakyCache fails every call while down is set.
type flakyCache struct {
	*MemoryCache
	down bool
}

func (c *flakyCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.down {
		return nil, errors.New("connection refused")
	}
	return c.MemoryCache.Get(ctx, key)
}

func (c *flakyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.down {
		return errors.New("connection refused")
	}
	return c.MemoryCache.Set(ctx, key, value, ttl)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	b, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestGuardedCache(t *testing.T) {
	ctx := context.Background()
	primary := &flakyCache{MemoryCache: NewMemoryCache()}
	fallback := NewMemoryCache()
	m := NewWithRegistry(prometheus.NewRegistry())
	breaker := circuit.New("dashboard-cache", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))
	c := NewGuardedCache(primary, fallback, breaker, nil, m)

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Minute))

	t.Run("primary errors surface until the circuit opens", func(t *testing.T) {
		primary.down = true
		_, err := c.Get(ctx, "k")
		assert.Error(t, err)
		assert.False(t, breaker.IsOpen())

		b, err := c.Get(ctx, "k")
		require.NoError(t, err, "the opening failure already serves the fallback")
		assert.Equal(t, "v1", string(b))
		assert.True(t, breaker.IsOpen())
		assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerOpen), 0)
		assert.InDelta(t, 2, testutil.ToFloat64(m.CacheErrors), 0)
	})

	t.Run("writes land in the fallback while open", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k2", []byte("v2"), time.Minute))
		b, err := c.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(b))
	})

	t.Run("recovery closes the circuit after enough successes", func(t *testing.T) {
		primary.down = false
		b, err := c.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(b), "still served from fallback while closing")
		assert.True(t, breaker.IsOpen())

		_, err = c.Get(ctx, "k2")
		assert.ErrorIs(t, err, sentinel.ErrNotFound, "primary never saw k2")
		assert.False(t, breaker.IsOpen())
		assert.InDelta(t, 0, testutil.ToFloat64(m.BreakerOpen), 0)
	})
}
