package discovery

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// RedisRegistrySuite runs against a real Redis; it is skipped when none is
// reachable.
type RedisRegistrySuite struct {
	suite.Suite
	client   *redis.Client
	registry *RedisRegistry
}

func (s *RedisRegistrySuite) SetupSuite() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	s.client = redis.NewClient(&redis.Options{Addr: addr, DB: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.T().Skip("Redis not available, skipping registry tests")
		return
	}
	s.client.FlushDB(ctx)
}

func (s *RedisRegistrySuite) SetupTest() {
	s.registry = NewRedisRegistryFromClient(s.client, 2*time.Second)
}

func (s *RedisRegistrySuite) TearDownTest() {
	s.client.FlushDB(context.Background())
}

func (s *RedisRegistrySuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *RedisRegistrySuite) TestSaveLookupRemove() {
	ctx := context.Background()
	a := sampleAnnouncement()

	s.Require().NoError(s.registry.Save(ctx, a))
	got, err := s.registry.Lookup(ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(a, got[0])

	ttl, err := s.client.TTL(ctx, redisKeyPrefix+a.SessionID).Result()
	s.Require().NoError(err)
	s.Positive(ttl)

	s.Require().NoError(s.registry.Remove(ctx, a.SessionID))
	got, err = s.registry.Lookup(ctx)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *RedisRegistrySuite) TestPublishIsWrittenInBackground() {
	a := sampleAnnouncement()
	s.registry.Publish(a)

	s.Eventually(func() bool {
		n, err := s.client.Exists(context.Background(), redisKeyPrefix+a.SessionID).Result()
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func (s *RedisRegistrySuite) TestShutdownFlushesThenRemoves() {
	opts := *s.client.Options()
	registry := NewRedisRegistryFromClient(redis.NewClient(&opts), 2*time.Second)

	a := sampleAnnouncement()
	registry.Publish(a)
	s.Require().NoError(registry.Shutdown(context.Background(), a.SessionID))

	n, err := s.client.Exists(context.Background(), redisKeyPrefix+a.SessionID).Result()
	s.Require().NoError(err)
	s.Zero(n)

	// publishing after shutdown is dropped
	registry.Publish(a)
}

func TestRedisRegistrySuite(t *testing.T) {
	suite.Run(t, new(RedisRegistrySuite))
}

func TestRedisRegistry_NilIsNoop(t *testing.T) {
	var r *RedisRegistry
	r.Publish(sampleAnnouncement())
	got, err := r.Lookup(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("nil registry lookup = %v, %v", got, err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}
