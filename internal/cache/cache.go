// Package cache verifies the Redis cache the application uses for query
// results. The cache is optional: the application degrades to uncached
// queries when Redis is unavailable.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	probeKeyPrefix  = "stackboot:probe:"
	probeTTL        = 30 * time.Second
	defaultPingTime = 2 * time.Second
)

// commander is the subset of *redis.Client the verifier needs. The real
// client satisfies it directly.
type commander interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Verifier checks that Redis accepts reads and writes.
type Verifier struct {
	logger zerolog.Logger
	client commander
}

// NewVerifier builds a verifier for the given address, such as
// "localhost:6379".
func NewVerifier(logger zerolog.Logger, addr string) *Verifier {
	return &Verifier{
		logger: logger,
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Verify pings Redis and round-trips a short-lived probe key. The key carries
// a random suffix so concurrent runs do not trip over each other.
func (v *Verifier) Verify(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTime)
	defer cancel()

	pong, err := v.client.Ping(pingCtx).Result()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected ping response: %q", pong)
	}

	key := probeKeyPrefix + uuid.NewString()
	value := time.Now().UTC().Format(time.RFC3339Nano)

	if err := v.client.Set(ctx, key, value, probeTTL).Err(); err != nil {
		return fmt.Errorf("set probe key: %w", err)
	}
	got, err := v.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("get probe key: %w", err)
	}
	if got != value {
		return fmt.Errorf("probe key mismatch: wrote %q, read %q", value, got)
	}
	if err := v.client.Del(ctx, key).Err(); err != nil {
		v.logger.Debug().Err(err).Str("key", key).Msg("probe key cleanup failed, ttl will reap it")
	}

	v.logger.Debug().Msg("cache verified")
	return nil
}

// Close releases the underlying connection pool.
func (v *Verifier) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}
