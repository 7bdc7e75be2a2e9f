package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/demographics-cli/internal/model"
)

// CountyStore caches county statistics, which are shared by every property
// in the county.
type CountyStore interface {
	Get(ctx context.Context, key CountyKey) (*model.CountyData, bool, error)
	Put(ctx context.Context, key CountyKey, data *model.CountyData) error
}

// Memory is an in-process CountyStore.
type Memory struct {
	ttl *TTL[CountyKey, *model.CountyData]
}

// NewMemory creates an in-process county cache.
func NewMemory(opts ...Option) *Memory {
	return &Memory{ttl: NewTTL[CountyKey, *model.CountyData](opts...)}
}

// Get implements CountyStore.
func (m *Memory) Get(_ context.Context, key CountyKey) (*model.CountyData, bool, error) {
	v, ok := m.ttl.Get(key)
	return v, ok, nil
}

// Put implements CountyStore.
func (m *Memory) Put(_ context.Context, key CountyKey, data *model.CountyData) error {
	m.ttl.Put(key, data)
	return nil
}

// Stats returns the underlying cache counters.
func (m *Memory) Stats() Stats { return m.ttl.Stats() }

const countyKeyPrefix = "census:county:"

// Redis is a CountyStore shared across processes. Expiry is delegated to
// Redis via SET ... EX.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	year   string
}

// NewRedis wraps an existing client. year namespaces keys by ACS vintage.
func NewRedis(client *redis.Client, ttl time.Duration, year string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, year: year}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return client, nil
}

func (r *Redis) key(key CountyKey) string {
	return countyKeyPrefix + key.StateFIPS + key.CountyFIPS + ":" + r.year
}

// Get implements CountyStore.
func (r *Redis) Get(ctx context.Context, key CountyKey) (*model.CountyData, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: redis get")
	}

	var data model.CountyData
	if err := json.Unmarshal(raw, &data); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next put.
		return nil, false, nil
	}
	return &data, true, nil
}

// Put implements CountyStore.
func (r *Redis) Put(ctx context.Context, key CountyKey, data *model.CountyData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "cache: marshal county")
	}
	if err := r.client.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		return eris.Wrap(err, "cache: redis set")
	}
	return nil
}
