package refcache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwatch/internal/db"
	"cropwatch/internal/models"
	"cropwatch/internal/redis"
	"cropwatch/internal/refcache"
)

type countingLoader struct {
	mu        sync.Mutex
	typeCalls int
	locCalls  int
	types     map[int64]*models.DeviceType
	err       error
}

func (l *countingLoader) DeviceType(_ context.Context, id int64) (*models.DeviceType, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typeCalls++
	if l.err != nil {
		return nil, l.err
	}
	t, ok := l.types[id]
	if !ok {
		return nil, fmt.Errorf("get device type %d: %w", id, db.ErrNotFound)
	}
	return t, nil
}

func (l *countingLoader) Location(_ context.Context, id int64) (*models.LocationRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locCalls++
	return &models.LocationRow{LocationID: id}, nil
}

func label(s string) *string { return &s }

func newLoader() *countingLoader {
	return &countingLoader{types: map[int64]*models.DeviceType{
		1: {ID: 1, Name: "air", PrimaryData: label("temperature_c")},
	}}
}

func TestCache_ServesRepeatLookupsWithoutReloading(t *testing.T) {
	loader := newLoader()
	c := refcache.New(loader, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dt, err := c.DeviceType(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, dt)
		assert.Equal(t, "air", dt.Name)
	}
	assert.Equal(t, 1, loader.typeCalls)

	loc, err := c.Location(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), loc.LocationID)
	_, _ = c.Location(ctx, 5)
	assert.Equal(t, 1, loader.locCalls)
}

func TestCache_NotFoundIsCachedAsAbsent(t *testing.T) {
	loader := newLoader()
	c := refcache.New(loader, 8, time.Minute)

	dt, err := c.DeviceType(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, dt)

	dt, err = c.DeviceType(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, dt)
	assert.Equal(t, 1, loader.typeCalls)
}

func TestCache_LoaderErrorIsNotCached(t *testing.T) {
	loader := newLoader()
	loader.err = errors.New("connection refused")
	c := refcache.New(loader, 8, time.Minute)

	_, err := c.DeviceType(context.Background(), 1)
	require.Error(t, err)

	loader.err = nil
	dt, err := c.DeviceType(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, dt)
	assert.Equal(t, 2, loader.typeCalls)
}

func TestCache_BoundedSize(t *testing.T) {
	loader := &countingLoader{types: map[int64]*models.DeviceType{}}
	c := refcache.New(loader, 2, time.Minute)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 1} {
		_, _ = c.DeviceType(ctx, id)
	}
	// 1 was evicted by 3
	assert.Equal(t, 4, loader.typeCalls)
}

func TestCache_SharedTier(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := redis.NewRedisKVStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	first := newLoader()
	_, err := refcache.New(first, 8, time.Minute, refcache.WithKVStore(kv)).DeviceType(ctx, 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists("cropwatch:ref:device_type:1"))

	second := newLoader()
	other := refcache.New(second, 8, time.Minute, refcache.WithKVStore(kv))
	dt, err := other.DeviceType(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, dt)
	assert.Equal(t, "air", dt.Name)
	assert.Equal(t, 0, second.typeCalls)

	other.InvalidateDeviceType(ctx, 1)
	assert.False(t, mr.Exists("cropwatch:ref:device_type:1"))
	_, err = other.DeviceType(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, second.typeCalls)
}

func TestCache_SharedTierDownFallsBackToLoader(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := redis.NewRedisKVStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	mr.Close()

	loader := newLoader()
	dt, err := refcache.New(loader, 8, time.Minute, refcache.WithKVStore(kv)).DeviceType(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, dt)
	assert.Equal(t, 1, loader.typeCalls)
}
