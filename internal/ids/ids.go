// Package ids hands out ride identifiers that strictly increase for the life of a process.
package ids

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

type Generator interface {
	Next(ctx context.Context) (string, error)
}

// Sequence counts from 1 in memory.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next(context.Context) (string, error) {
	return strconv.FormatUint(s.n.Add(1), 10), nil
}

// RedisSequence uses INCR so several dispatcher processes can share one ID space.
type RedisSequence struct {
	client redis.Cmdable
	key    string
}

func NewRedisSequence(client redis.Cmdable, key string) *RedisSequence {
	if key == "" {
		key = "ride:id:seq"
	}
	return &RedisSequence{client: client, key: key}
}

func (r *RedisSequence) Next(ctx context.Context) (string, error) {
	n, err := r.client.Incr(ctx, r.key).Result()
	if err != nil {
		return "", fmt.Errorf("next ride id: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}
