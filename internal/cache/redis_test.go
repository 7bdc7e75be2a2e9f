package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sells-group/demographics-cli/internal/model"
)

type RedisCountySuite struct {
	suite.Suite
	client *redis.Client
	store  *Redis
}

func TestRedisCountySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(RedisCountySuite))
}

func (s *RedisCountySuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(s.T(), container)
	s.Require().NoError(err)

	url, err := container.ConnectionString(ctx)
	s.Require().NoError(err)

	s.client, err = DialRedis(ctx, url)
	s.Require().NoError(err)
	s.store = NewRedis(s.client, 2*time.Hour, "2022")
}

func (s *RedisCountySuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *RedisCountySuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisCountySuite) TestPutThenGet() {
	ctx := context.Background()
	key := CountyKey{StateFIPS: "06", CountyFIPS: "037"}
	want := &model.CountyData{
		CountyName:            "Los Angeles County",
		TotalPopulation:       10014009,
		MedianHouseholdIncome: 76367,
		OccupiedHousingUnits:  3363093,
		OwnerOccupied:         1537575,
		RenterOccupied:        1825518,
		MedianAge:             37.2,
	}

	s.Require().NoError(s.store.Put(ctx, key, want))

	got, ok, err := s.store.Get(ctx, key)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(want, got)
}

func (s *RedisCountySuite) TestMiss() {
	got, ok, err := s.store.Get(context.Background(), CountyKey{StateFIPS: "48", CountyFIPS: "201"})
	s.NoError(err)
	s.False(ok)
	s.Nil(got)
}

func (s *RedisCountySuite) TestPutSetsTTL() {
	ctx := context.Background()
	key := CountyKey{StateFIPS: "48", CountyFIPS: "201"}
	s.Require().NoError(s.store.Put(ctx, key, &model.CountyData{CountyName: "Harris County"}))

	ttl, err := s.client.TTL(ctx, "census:county:48201:2022").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Hour)
	s.LessOrEqual(ttl, 2*time.Hour)
}

func (s *RedisCountySuite) TestCorruptEntryIsMiss() {
	ctx := context.Background()
	key := CountyKey{StateFIPS: "17", CountyFIPS: "031"}
	s.Require().NoError(s.client.Set(ctx, s.store.key(key), "{not json", time.Hour).Err())

	got, ok, err := s.store.Get(ctx, key)
	s.NoError(err)
	s.False(ok)
	s.Nil(got)

	// The next put replaces the corrupt value.
	s.Require().NoError(s.store.Put(ctx, key, &model.CountyData{CountyName: "Cook County"}))
	got, ok, err = s.store.Get(ctx, key)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("Cook County", got.CountyName)
}

func (s *RedisCountySuite) TestYearNamespacesKeys() {
	ctx := context.Background()
	key := CountyKey{StateFIPS: "06", CountyFIPS: "037"}
	s.Require().NoError(s.store.Put(ctx, key, &model.CountyData{CountyName: "Los Angeles County"}))

	other := NewRedis(s.client, time.Hour, "2021")
	_, ok, err := other.Get(ctx, key)
	s.NoError(err)
	s.False(ok)
}
