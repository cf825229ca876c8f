package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const keyPrefix = "ledger:price:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long keys of an abandoned run survive.
	TTL time.Duration
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisCache is a price cache shared by the replicas of one run. Every key
// lives under the run's namespace and Reset drops the namespace.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, runID string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{
		client: client,
		prefix: keyPrefix + runID + ":",
		ttl:    ttl,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) (domain.PriceQuote, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PriceQuote{}, false, nil
	}
	if err != nil {
		return domain.PriceQuote{}, false, err
	}
	var q domain.PriceQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.PriceQuote{}, false, fmt.Errorf("decoding cached quote %s: %w", key, err)
	}
	return q, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, quote domain.PriceQuote) error {
	raw, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err()
}

func (r *RedisCache) Reset(ctx context.Context) error {
	var cursor uint64
	var deleted int
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	log.WithFields(log.Fields{
		"package": "cache",
		"func":    "Reset",
		"prefix":  r.prefix,
	}).Debugf("deleted %d keys", deleted)
	return nil
}
