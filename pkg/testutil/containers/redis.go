//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:7-alpine"

// RedisContainer is a throwaway Redis for the scan lock tests. Addr is a
// redis:// URL accepted by config.RedisConfig.
type RedisContainer struct {
	Addr   string
	Client *redis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	c, err := tcredis.Run(ctx, redisImage)
	require.NoError(t, err, "start %s", redisImage)

	url, err := c.ConnectionString(ctx)
	require.NoError(t, err, "redis connection string")

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err(), "ping redis at %s", url)

	return &RedisContainer{Addr: url, Client: client}
}

// FlushAll drops every key so lock tests start from an empty keyspace.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
