// Package presence mirrors which instance holds each user's chat session
// into Redis, so any instance can answer presence queries.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridematch/pkg/logger"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	keyPrefix = "presence:user:"

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps one key per online user holding the instance label. Keys
// expire after ttl so a crashed instance does not leave users online forever.
//
// Calls go through a circuit breaker. While it is open they fail fast with
// gobreaker.ErrOpenState and callers fall back to the status rows.
type RedisStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[string]
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "redis-presence",
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("presence breaker state changed")
			},
		}),
	}
}

func key(userID string) string {
	return keyPrefix + userID
}

// releaseScript deletes the key only while it still names this instance, so
// a late disconnect cannot erase a newer session held elsewhere.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key held by this instance, or recreates it after
// it expired. A key owned by another instance is left alone.
var refreshScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false or cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

func (s *RedisStore) SetOnline(ctx context.Context, userID, instance string) error {
	_, err := s.breaker.Execute(func() (string, error) {
		return s.rdb.Set(ctx, key(userID), instance, s.ttl).Result()
	})
	return err
}

// SetOffline clears userID's entry if instance still owns it.
func (s *RedisStore) SetOffline(ctx context.Context, userID, instance string) error {
	_, err := s.breaker.Execute(func() (string, error) {
		return "", releaseScript.Run(ctx, s.rdb, []string{key(userID)}, instance).Err()
	})
	return err
}

// Refresh extends the entries of users with a live session on instance.
func (s *RedisStore) Refresh(ctx context.Context, instance string, userIDs []string) error {
	ttl := s.ttl.Milliseconds()
	_, err := s.breaker.Execute(func() (string, error) {
		if err := refreshScript.Load(ctx, s.rdb).Err(); err != nil {
			return "", err
		}
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, userID := range userIDs {
				refreshScript.EvalSha(ctx, pipe, []string{key(userID)}, instance, ttl)
			}
			return nil
		})
		return "", err
	})
	return err
}

// Instance reports the instance holding userID, if any.
func (s *RedisStore) Instance(ctx context.Context, userID string) (string, bool, error) {
	instance, err := s.breaker.Execute(func() (string, error) {
		v, err := s.rdb.Get(ctx, key(userID)).Result()
		if errors.Is(err, redis.Nil) {
			// a missing key is an answer, not a failure
			return "", nil
		}
		return v, err
	})
	if err != nil {
		return "", false, err
	}
	return instance, instance != "", nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
