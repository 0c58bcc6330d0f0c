// Package cache keeps a shared copy of the employee record set in Redis and
// provides the cross-process gesture lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"organiflow/api/internal/hierarchy"
)

const defaultPrefix = "organiflow:"

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another process")

// cachedRecords is the JSON payload stored under the records key.
type cachedRecords struct {
	Records  []hierarchy.Employee `json:"records"`
	CachedAt time.Time            `json:"cached_at"`
}

// RedisStore caches employee records and holds short-lived locks in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultPrefix,
	}
}

func (s *RedisStore) key(parts ...string) string {
	out := s.prefix
	for i, p := range parts {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}

// LoadRecords returns the cached records. ok is false on a cache miss.
func (s *RedisStore) LoadRecords(ctx context.Context) (records []hierarchy.Employee, ok bool, err error) {
	raw, err := s.client.Get(ctx, s.key("employees")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load records: %w", err)
	}

	var payload cachedRecords
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal records: %w", err)
	}
	return payload.Records, true, nil
}

// Generation returns the invalidation counter. It only grows, and a missing
// key reads as zero.
func (s *RedisStore) Generation(ctx context.Context) (int64, error) {
	gen, err := s.client.Get(ctx, s.key("employees", "gen")).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load generation: %w", err)
	}
	return gen, nil
}

var saveIfGenerationScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// SaveRecordsAt stores records only if no invalidation happened since gen
// was read. saved is false when the copy was already stale.
func (s *RedisStore) SaveRecordsAt(ctx context.Context, gen int64, records []hierarchy.Employee, ttl time.Duration) (saved bool, err error) {
	payload, err := json.Marshal(cachedRecords{Records: records, CachedAt: time.Now().UTC()})
	if err != nil {
		return false, fmt.Errorf("marshal records: %w", err)
	}
	n, err := saveIfGenerationScript.Run(ctx, s.client,
		[]string{s.key("employees"), s.key("employees", "gen")},
		strconv.FormatInt(gen, 10), payload, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("save records: %w", err)
	}
	return n == 1, nil
}

// Invalidate drops the cached records and bumps the generation so reads that
// started before it cannot store their result.
func (s *RedisStore) Invalidate(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.key("employees", "gen"))
		pipe.Del(ctx, s.key("employees"))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate records: %w", err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock takes the named lock for ttl and returns the token needed to
// release it. ErrLockHeld is returned when someone else holds it.
func (s *RedisStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.key("lock", name), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseLock frees the named lock if token still owns it.
func (s *RedisStore) ReleaseLock(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key("lock", name)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
