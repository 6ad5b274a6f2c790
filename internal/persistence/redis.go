package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
)

const redisStartupPing = 3 * time.Second

// Redis holds the client behind the refresh-token whitelist. A single
// address yields a plain client, several yield a cluster client, and a
// master name switches to sentinel failover.
type Redis struct {
	Client redis.UniversalClient
}

// NewRedis builds the client and probes it once. An unreachable server is
// logged, not fatal: the session store fails closed until it recovers.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	opts := universalOptions(cfg)
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisStartupPing)
	defer cancel()

	addrs := zap.Strings("addrs", opts.Addrs)
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis; session operations will fail until it is available", addrs, zap.Error(err))
	} else {
		logger.Info("connected to redis", addrs)
	}

	return &Redis{Client: client}
}

func universalOptions(cfg config.RedisConfig) *redis.UniversalOptions {
	var addrs []string
	for _, addr := range strings.Split(cfg.Addr, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return &redis.UniversalOptions{
		Addrs:      addrs,
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
	}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
