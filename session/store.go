package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session holds no value for the requested key.
var ErrNotFound = errors.New("session value not found")

// ErrRedisUnavailable is returned when the backing Redis cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minSlidingTTL = time.Second

// Store is the key/value contract for per-session state. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
}

// RedisStore keeps each session as one Redis hash whose fields are the
// state keys. Every write refreshes the hash TTL; reads refresh it too when
// sliding expiration is enabled.
type RedisStore struct {
	redis         redis.UniversalClient
	prefix        string
	ttl           time.Duration
	sliding       bool
	jitterEnabled bool
	jitterRange   time.Duration
}

// NewRedisStore creates a [RedisStore] backed by the given Redis client.
// prefix sets the Redis key namespace; ttl, sliding, jitterEnabled and
// jitterRange control expiration behavior.
func NewRedisStore(
	redis redis.UniversalClient,
	prefix string,
	ttl time.Duration,
	sliding bool,
	jitterEnabled bool,
	jitterRange time.Duration,
) *RedisStore {
	if prefix == "" {
		prefix = "grss"
	}
	return &RedisStore{
		redis:         redis,
		prefix:        prefix,
		ttl:           ttl,
		sliding:       sliding,
		jitterEnabled: jitterEnabled,
		jitterRange:   jitterRange,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Get returns the raw value stored under key, or [ErrNotFound].
//
//	Performance: 1 Redis HGET, plus 1 PEXPIRE when sliding.
func (s *RedisStore) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	hashKey := s.key(sessionID)

	data, err := s.redis.HGet(ctx, hashKey, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if s.sliding && s.ttl > 0 {
		nextTTL, err := s.nextSlidingTTL()
		if err != nil {
			return nil, err
		}
		if err := s.redis.PExpire(ctx, hashKey, nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return data, nil
}

// Set stores value under key and refreshes the session TTL.
//
//	Performance: 1 MULTI/EXEC (HSET + PEXPIRE).
func (s *RedisStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	hashKey := s.key(sessionID)

	nextTTL, err := s.nextSlidingTTL()
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, key, value)
		if nextTTL > 0 {
			pipe.PExpire(ctx, hashKey, nextTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes key from the session. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := s.redis.HDel(ctx, s.key(sessionID), key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping reports the round-trip latency to Redis.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) nextSlidingTTL() (time.Duration, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	nextTTL := s.ttl

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL < minSlidingTTL {
		nextTTL = minSlidingTTL
	}

	return nextTTL, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
