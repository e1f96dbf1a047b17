package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adDecisioning/pkg/config"

	"github.com/redis/go-redis/v9"
)

// Addrs expands REDIS_HOST, which may list several comma separated hosts
// for a cluster, into host:port addresses. Hosts that already carry a port
// keep it.
func Addrs(cfg config.RedisConfig) []string {
	var out []string
	for _, h := range strings.Split(cfg.RedisHost, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.Contains(h, ":") {
			h = h + ":" + cfg.RedisPort
		}
		out = append(out, h)
	}
	return out
}

// NewRedisClient returns a single-node client for one address and a cluster
// client for several. Timeouts are sized for the auction hot path.
func NewRedisClient(cfg *config.Config) (redis.UniversalClient, error) {
	addrs := Addrs(cfg.Redis)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no redis address configured")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     cfg.Redis.RedisPassword,
		DB:           cfg.Redis.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
		PoolSize:     64,
		MinIdleConns: 8,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis %v: %w", addrs, err)
	}

	return client, nil
}

func CloseRedisClient(client redis.UniversalClient) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
