package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwatch/internal/config"
	"cropwatch/internal/redis"
)

func TestRedisKVStore(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := redis.NewRedisKVStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, redis.ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.ErrCacheMiss)

	require.NoError(t, kv.Set(ctx, "d", "v", 0))
	require.NoError(t, kv.Del(ctx, "d"))
	_, err = kv.Get(ctx, "d")
	assert.ErrorIs(t, err, redis.ErrCacheMiss)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := redis.NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = redis.NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
