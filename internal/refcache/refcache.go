// Package refcache caches the reference rows (device types and locations)
// that device rows point at. Entries live in a bounded in-process LRU with
// a TTL and, when configured, in Redis so other instances can share them.
package refcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cropwatch/internal/db"
	"cropwatch/internal/models"
	"cropwatch/internal/redis"
)

// Loader reads reference rows from the store. A missing row is reported
// with db.ErrNotFound.
type Loader interface {
	DeviceType(ctx context.Context, id int64) (*models.DeviceType, error)
	Location(ctx context.Context, id int64) (*models.LocationRow, error)
}

// entry is what both tiers hold. Found is false for rows known to be missing.
type entry[T any] struct {
	Found bool `json:"found"`
	Value *T   `json:"value,omitempty"`
}

type tier[T any] struct {
	name string
	lru  *expirable.LRU[int64, entry[T]]
	load func(ctx context.Context, id int64) (*T, error)
}

type Cache struct {
	types     *tier[models.DeviceType]
	locations *tier[models.LocationRow]
	kv        redis.KVStore
	ttl       time.Duration
	group     singleflight.Group
	logger    *zap.Logger
}

type Option func(*Cache)

// WithKVStore adds a shared second tier.
func WithKVStore(kv redis.KVStore) Option {
	return func(c *Cache) { c.kv = kv }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New builds a cache holding at most size entries per kind for ttl.
func New(loader Loader, size int, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{ttl: ttl, logger: zap.NewNop()}
	c.types = &tier[models.DeviceType]{
		name: "device_type",
		lru:  expirable.NewLRU[int64, entry[models.DeviceType]](size, nil, ttl),
		load: loader.DeviceType,
	}
	c.locations = &tier[models.LocationRow]{
		name: "location",
		lru:  expirable.NewLRU[int64, entry[models.LocationRow]](size, nil, ttl),
		load: loader.Location,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceType returns the device type, or nil when it does not exist.
func (c *Cache) DeviceType(ctx context.Context, id int64) (*models.DeviceType, error) {
	return lookup(ctx, c, c.types, id)
}

// Location returns the location, or nil when it does not exist.
func (c *Cache) Location(ctx context.Context, id int64) (*models.LocationRow, error) {
	return lookup(ctx, c, c.locations, id)
}

// InvalidateDeviceType drops a device type from both tiers.
func (c *Cache) InvalidateDeviceType(ctx context.Context, id int64) {
	invalidate(ctx, c, c.types, id)
}

// InvalidateLocation drops a location from both tiers.
func (c *Cache) InvalidateLocation(ctx context.Context, id int64) {
	invalidate(ctx, c, c.locations, id)
}

func key(name string, id int64) string {
	return "cropwatch:ref:" + name + ":" + strconv.FormatInt(id, 10)
}

func lookup[T any](ctx context.Context, c *Cache, t *tier[T], id int64) (*T, error) {
	if e, ok := t.lru.Get(id); ok {
		return e.Value, nil
	}

	k := key(t.name, id)
	v, err, _ := c.group.Do(k, func() (any, error) {
		if e, ok := c.fromKV(ctx, k, t.name); ok {
			var typed entry[T]
			if err := json.Unmarshal(e, &typed); err == nil {
				t.lru.Add(id, typed)
				return typed, nil
			}
		}

		row, err := t.load(ctx, id)
		var e entry[T]
		switch {
		case err == nil:
			e = entry[T]{Found: true, Value: row}
		case errors.Is(err, db.ErrNotFound):
			e = entry[T]{}
		default:
			return nil, err
		}

		t.lru.Add(id, e)
		c.toKV(ctx, k, e)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s %d: %w", t.name, id, err)
	}
	return v.(entry[T]).Value, nil
}

func (c *Cache) fromKV(ctx context.Context, k, name string) ([]byte, bool) {
	if c.kv == nil {
		return nil, false
	}
	s, err := c.kv.Get(ctx, k)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("shared cache read failed", zap.String("kind", name), zap.Error(err))
		}
		return nil, false
	}
	return []byte(s), true
}

func (c *Cache) toKV(ctx context.Context, k string, v any) {
	if c.kv == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, k, string(b), c.ttl); err != nil {
		c.logger.Warn("shared cache write failed", zap.String("key", k), zap.Error(err))
	}
}

func invalidate[T any](ctx context.Context, c *Cache, t *tier[T], id int64) {
	t.lru.Remove(id)
	if c.kv == nil {
		return
	}
	if err := c.kv.Del(ctx, key(t.name, id)); err != nil {
		c.logger.Warn("shared cache delete failed", zap.String("kind", t.name), zap.Error(err))
	}
}
