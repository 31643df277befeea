package inflight

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-report/internal/forecast"
)

const (
	keyPrefix    = "weather:ingest:"
	pollInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares in-flight locks between instances through Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

var _ forecast.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker whose keys expire after ttl, bounding how
// long a crashed holder can block others.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// Lock polls SET NX until it owns key or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			log.Printf("WARN: failed to release lock %s: %v", redisKey, err)
		}
	}, nil
}
