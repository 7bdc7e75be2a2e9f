package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/demographics-cli/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTL_PutGet(t *testing.T) {
	c := NewTTL[string, int]()
	c.Put("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTL_Expiry(t *testing.T) {
	clock := newFakeClock()
	c := NewTTL[string, int](WithTTL(24*time.Hour), WithClock(clock.Now))
	c.Put("a", 1)

	clock.Advance(24 * time.Hour)
	_, ok := c.Get("a")
	assert.True(t, ok, "entry exactly at TTL is still fresh")

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry removed on read")
}

func TestTTL_LastWriterWins(t *testing.T) {
	clock := newFakeClock()
	c := NewTTL[string, int](WithTTL(time.Hour), WithClock(clock.Now))
	c.Put("a", 1)
	clock.Advance(50 * time.Minute)
	c.Put("a", 2)
	clock.Advance(50 * time.Minute)

	v, ok := c.Get("a")
	require.True(t, ok, "overwrite refreshes the stored time")
	assert.Equal(t, 2, v)
}

func TestTTL_MaxEntriesEvictsLRU(t *testing.T) {
	c := NewTTL[string, int](WithMaxEntries(2))
	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestTTL_Stats(t *testing.T) {
	c := NewTTL[string, int](WithMaxEntries(10))
	c.Put("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("b")

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, 10, s.MaxEntries)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 1e-9)
}

func TestTTL_ZeroTTLUsesDefault(t *testing.T) {
	clock := newFakeClock()
	c := NewTTL[string, int](WithTTL(0), WithClock(clock.Now))
	c.Put("a", 1)
	clock.Advance(23 * time.Hour)
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestTTL_Concurrent(t *testing.T) {
	c := NewTTL[int, int](WithMaxEntries(50))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(j, n)
				c.Get(j)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "county_06_037", CountyKey{StateFIPS: "06", CountyFIPS: "037"}.String())
	assert.Equal(t, "34.05_-118.25_3", CoordKey{Lat: 34.05, Lon: -118.25, RadiusMiles: 3}.String())

	// Coordinates are not rounded, so nearby points are distinct keys.
	a := CoordKey{Lat: 34.05, Lon: -118.25, RadiusMiles: 3}
	b := CoordKey{Lat: 34.050001, Lon: -118.25, RadiusMiles: 3}
	assert.NotEqual(t, a, b)
}

func TestMemory_CountyStore(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(WithClock(clock.Now))
	key := CountyKey{StateFIPS: "06", CountyFIPS: "037"}

	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, key, &model.CountyData{CountyName: "Los Angeles County", TotalPopulation: 10000000}))
	got, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Los Angeles County", got.CountyName)

	clock.Advance(DefaultTTL + time.Minute)
	_, ok, _ = m.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, int64(1), m.Stats().Hits)
}

func TestRedis_KeyFormat(t *testing.T) {
	r := NewRedis(nil, 0, "2022")
	assert.Equal(t, "census:county:06037:2022", r.key(CountyKey{StateFIPS: "06", CountyFIPS: "037"}))
	assert.Equal(t, DefaultTTL, r.ttl)
}

func TestRedis_UnreachableReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close() //nolint:errcheck

	r := NewRedis(client, time.Hour, "2022")
	ctx := context.Background()
	key := CountyKey{StateFIPS: "06", CountyFIPS: "037"}

	_, ok, err := r.Get(ctx, key)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, r.Put(ctx, key, &model.CountyData{}))
}

func TestDialRedis_BadURL(t *testing.T) {
	_, err := DialRedis(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: parse redis url")
}

func BenchmarkTTL_Get(b *testing.B) {
	c := NewTTL[string, int]()
	for i := 0; i < 1000; i++ {
		c.Put(fmt.Sprint(i), i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprint(i % 1000))
	}
}
