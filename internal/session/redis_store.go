package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Each identity owns one sorted set of fingerprints scored by expiry (unix ms).
// Expired members are pruned on every write.
const rotateScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if redis.call("ZREM", KEYS[1], ARGV[2]) == 0 then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[4], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisClock overrides the time source used for member expiry.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore creates a store under the key namespace prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "auth"
	}
	s := &RedisStore{redis: client, prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) tokensKey(identityID string) string {
	return s.prefix + ":rt:" + identityID
}

func (s *RedisStore) pendingKey(tokenID string) string {
	return s.prefix + ":pending:" + tokenID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Add implements Store.
func (s *RedisStore) Add(ctx context.Context, identityID, token string, ttl time.Duration) error {
	now := s.now()
	key := s.tokensKey(identityID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(ttl).UnixMilli()), Member: Fingerprint(token)})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, identityID, token string) error {
	if err := s.redis.ZRem(ctx, s.tokensKey(identityID), Fingerprint(token)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Rotate implements Store. The check and the swap run as one Lua script.
func (s *RedisStore) Rotate(ctx context.Context, identityID, oldToken, newToken string, ttl time.Duration) error {
	now := s.now()
	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.tokensKey(identityID)},
		now.UnixMilli(),
		Fingerprint(oldToken),
		Fingerprint(newToken),
		now.Add(ttl).UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res != 1 {
		return ErrReuseDetected
	}
	return nil
}

// RevokeAll implements Store.
func (s *RedisStore) RevokeAll(ctx context.Context, identityID string) error {
	if err := s.redis.Del(ctx, s.tokensKey(identityID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, identityID string) (bool, error) {
	floor := "(" + strconv.FormatInt(s.now().UnixMilli(), 10)
	n, err := s.redis.ZCount(ctx, s.tokensKey(identityID), floor, "+inf").Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// ConsumePending implements Store.
func (s *RedisStore) ConsumePending(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.pendingKey(tokenID), 1, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
