//go:build integration

package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/coregx/mailbus"
	"github.com/coregx/mailbus/model"
	"github.com/coregx/mailbus/retry"
)

func TestStore_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	driver, err := NewDriver(redis.NewClient(opts))
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	store, err := mailbus.NewStore(
		mailbus.WithDriver(driver),
		mailbus.WithConnectStrategy(retry.FixedDelay(5, 200*time.Millisecond)),
	)
	require.NoError(t, err)

	resolver := mailbus.MustResolver(mailbus.DefaultDedicatedDomains...)
	other := resolver.Resolve("x.com")

	for i := 0; i < 4; i++ {
		msg := model.NewMessage(fmt.Sprintf("u%d@x.com", i), "b")
		require.NoError(t, store.Write(ctx, other, model.NewStoredRecord(msg)))
	}

	marker, err := driver.Client().Get(ctx, SchemaKey("other")).Result()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, marker)

	records, err := store.ReadAll(ctx, other)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "u3@x.com", records[0].Address)
	assert.Equal(t, "x.com", records[0].Domain)

	n, err := store.Clear(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	records, err = store.ReadAll(ctx, resolver.Resolve("gmail.com"))
	require.NoError(t, err)
	assert.Empty(t, records)
}
