package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lansync:host:"

// RedisRegistry mirrors announcements into Redis hashes with a TTL, for
// networks that filter broadcast traffic. Writes happen on a background
// goroutine; Publish never blocks the caller.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	queue  chan Announcement
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
	logger *slog.Logger
}

// NewRedisRegistry connects to redisURL (redis://host:port/db) and verifies
// the connection.
func NewRedisRegistry(redisURL string, ttl time.Duration) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisRegistryFromClient(rdb, ttl), nil
}

func NewRedisRegistryFromClient(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &RedisRegistry{
		client: client,
		ttl:    ttl,
		queue:  make(chan Announcement, 16),
		logger: slog.Default(),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Publish queues a for writing. When the queue is full the announcement is
// dropped; the next one supersedes it anyway.
func (r *RedisRegistry) Publish(a Announcement) {
	if r == nil || r.client == nil || r.closed.Load() {
		return
	}
	select {
	case r.queue <- a:
	default:
		r.logger.Debug("registry_queue_full", "session_id", a.SessionID)
	}
}

func (r *RedisRegistry) run() {
	defer r.wg.Done()
	for a := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := r.Save(ctx, a); err != nil {
			r.logger.Warn("registry_save_failed", "session_id", a.SessionID, "error", err)
		}
		cancel()
	}
}

// Save writes one announcement synchronously.
func (r *RedisRegistry) Save(ctx context.Context, a Announcement) error {
	if r == nil || r.client == nil {
		return nil
	}
	key := redisKeyPrefix + a.SessionID
	fields := map[string]any{
		"session_id":   a.SessionID,
		"address":      a.Address,
		"game_port":    a.GamePort,
		"participants": a.Participants,
		"capacity":     a.Capacity,
		"relay_only":   strconv.FormatBool(a.RelayOnly),
	}
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, r.ttl).Err()
}

// Lookup returns every live announcement in the registry.
func (r *RedisRegistry) Lookup(ctx context.Context) ([]Announcement, error) {
	if r == nil || r.client == nil {
		return []Announcement{}, nil
	}
	var results []Announcement
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			fields, err := r.client.HGetAll(ctx, key).Result()
			if err != nil || len(fields) == 0 {
				continue
			}
			a := Announcement{
				SessionID: fields["session_id"],
				Address:   fields["address"],
			}
			a.GamePort, _ = strconv.Atoi(fields["game_port"])
			a.Participants, _ = strconv.Atoi(fields["participants"])
			a.Capacity, _ = strconv.Atoi(fields["capacity"])
			a.RelayOnly, _ = strconv.ParseBool(fields["relay_only"])
			if a.GamePort == 0 {
				continue
			}
			results = append(results, a)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return results, nil
}

func (r *RedisRegistry) Remove(ctx context.Context, sessionID string) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, redisKeyPrefix+sessionID).Err()
}

// Close flushes queued announcements and closes the client. It must not
// run concurrently with Publish.
func (r *RedisRegistry) Close() error {
	return r.shutdown(nil)
}

// Shutdown flushes queued announcements, deletes sessionID so listeners stop
// seeing it before its TTL runs out, and closes the client.
func (r *RedisRegistry) Shutdown(ctx context.Context, sessionID string) error {
	return r.shutdown(func() error { return r.Remove(ctx, sessionID) })
}

func (r *RedisRegistry) shutdown(final func() error) error {
	if r == nil || r.client == nil {
		return nil
	}
	var err error
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.queue)
		r.wg.Wait()
		if final != nil {
			err = final()
		}
		if cerr := r.client.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
