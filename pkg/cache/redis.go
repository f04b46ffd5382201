package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/campus-timetable-api/pkg/config"
)

const (
	keyPrefix   = "timetable"
	allSegment  = "*all*"
	dialTimeout = 5 * time.Second
)

// NewRedis dials Redis and pings it once. An empty host disables caching and yields a nil client.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// TimetableKey builds the cache key of a committed timetable view, e.g.
// TimetableKey("view", "cs", "") = "timetable:view:cs:*all*". Empty parts stand for "no filter".
// A kind of "*" yields the pattern matching every timetable key.
func TimetableKey(kind string, parts ...string) string {
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, keyPrefix, kind)
	for _, part := range parts {
		if part == "" {
			part = allSegment
		}
		segments = append(segments, strings.ReplaceAll(part, ":", "_"))
	}
	return strings.Join(segments, ":")
}
