package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowCounter is a fixed-window request counter shared by every API instance.
type WindowCounter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewWindowCounter(client *redis.Client, limit int, window time.Duration, prefix string) *WindowCounter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &WindowCounter{client: client, limit: limit, window: window, prefix: prefix}
}

// Allow counts one request for key and reports whether it is within the limit.
func (c *WindowCounter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := fixedWindowScript.Run(ctx, c.client, []string{c.prefix + ":" + key}, c.window.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	var count int64
	switch v := res.(type) {
	case int64:
		count = v
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, err
		}
		count = n
	default:
		return false, fmt.Errorf("unexpected redis script result type %T", res)
	}
	return count <= int64(c.limit), nil
}
