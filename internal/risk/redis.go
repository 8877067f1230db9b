package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sabihealth/outreach/internal/shared/logging"
)

// CachedSource is a Redis read-through cache in front of another source
type CachedSource struct {
	redis    *redis.Client
	upstream SignalSource
	ttl      time.Duration
	logger   *slog.Logger
}

// NewCachedSource wraps upstream with a Redis cache
func NewCachedSource(client *redis.Client, upstream SignalSource, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSource{
		redis:    client,
		upstream: upstream,
		ttl:      ttl,
		logger:   logging.OrDefault(logger).With("component", "risk_cache"),
	}
}

func cacheKey(location LocationUnit) string {
	return fmt.Sprintf("risk_signal:%s", location.Key())
}

// GetRiskSignal serves from Redis, falling back to the upstream source on a miss.
// Redis errors are logged and bypass the cache.
func (c *CachedSource) GetRiskSignal(ctx context.Context, location LocationUnit) (RiskSignal, error) {
	key := cacheKey(location)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var sig RiskSignal
		if err := json.Unmarshal(data, &sig); err == nil {
			return sig, nil
		}
		c.logger.Warn("discarding malformed cached signal", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("redis get failed", "key", key, "error", err)
	}

	sig, err := c.upstream.GetRiskSignal(ctx, location)
	if err != nil {
		return RiskSignal{}, err
	}
	if err := c.set(ctx, key, sig); err != nil {
		c.logger.Warn("redis set failed", "key", key, "error", err)
	}
	return sig, nil
}

// PutRiskSignal writes through to the upstream store when it accepts updates
func (c *CachedSource) PutRiskSignal(ctx context.Context, location LocationUnit, signal RiskSignal) error {
	if err := location.Validate(); err != nil {
		return err
	}
	if store, ok := c.upstream.(SignalStore); ok {
		if err := store.PutRiskSignal(ctx, location, signal); err != nil {
			return err
		}
	}
	return c.set(ctx, cacheKey(location), signal)
}

// Invalidate drops the cached signal for a location
func (c *CachedSource) Invalidate(ctx context.Context, location LocationUnit) error {
	return c.redis.Del(ctx, cacheKey(location)).Err()
}

func (c *CachedSource) set(ctx context.Context, key string, sig RiskSignal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set signal in Redis: %w", err)
	}
	return nil
}
