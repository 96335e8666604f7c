//go:build integration

package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetguard/pkg/platform/sentinel"
	"fleetguard/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	c := NewRedisCache(rc.Client)

	_, err := c.Get(ctx, "P1|D1|2024")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, c.Set(ctx, "P1|D1|2024", []byte(`{"ok":true}`), time.Minute))
	b, err := c.Get(ctx, "P1|D1|2024")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(b))

	ttl, err := rc.Client.TTL(ctx, cacheKeyPrefix+"P1|D1|2024").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
