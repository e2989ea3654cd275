package redis

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// NewClient accepts either a redis:// URL or a bare host:port.
func NewClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
