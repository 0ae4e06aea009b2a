// Package database also hosts the Redis-backed latest-signal cache. When
// Redis is unreachable the cache degrades to an in-process map so signal
// reads keep working on a single instance.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trading-signal-engine/internal/logging"
)

// Redis key layout for cached signals
const (
	// SignalKeyPrefix is the prefix for the latest display payload per
	// symbol. Format: signal:latest:{symbol}
	SignalKeyPrefix = "signal:latest"

	// DefaultSignalTTL bounds staleness; a payload older than this is
	// worse than no payload.
	DefaultSignalTTL = 5 * time.Minute
)

// SignalCache stores the latest display payload per symbol
type SignalCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger

	mu       sync.RWMutex
	fallback map[string]cachedEntry
}

type cachedEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewSignalCache creates a signal cache. A nil client enables the
// in-memory fallback immediately.
func NewSignalCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *SignalCache {
	if ttl <= 0 {
		ttl = DefaultSignalTTL
	}
	if logger == nil {
		logger = logging.WithComponent("signal-cache")
	}
	if client == nil {
		logger.Warn("Redis client not configured, using in-memory signal cache")
	}
	return &SignalCache{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		fallback: make(map[string]cachedEntry),
	}
}

func signalKey(symbol string) string {
	return fmt.Sprintf("%s:%s", SignalKeyPrefix, symbol)
}

// Store caches the latest payload for a symbol
func (c *SignalCache) Store(ctx context.Context, symbol string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal signal payload: %w", err)
	}

	if c.client != nil {
		if err := c.client.Set(ctx, signalKey(symbol), data, c.ttl).Err(); err == nil {
			return nil
		} else {
			c.logger.Warn("Redis signal write failed, falling back to memory",
				"symbol", symbol, "error", err)
		}
	}

	c.mu.Lock()
	c.fallback[symbol] = cachedEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Load returns the latest cached payload for a symbol, unmarshalled into
// dest. Returns false when nothing fresh is cached.
func (c *SignalCache) Load(ctx context.Context, symbol string, dest interface{}) (bool, error) {
	if c.client != nil {
		data, err := c.client.Get(ctx, signalKey(symbol)).Bytes()
		switch {
		case err == nil:
			return true, json.Unmarshal(data, dest)
		case err == redis.Nil:
			return false, nil
		default:
			c.logger.Warn("Redis signal read failed, falling back to memory",
				"symbol", symbol, "error", err)
		}
	}

	c.mu.RLock()
	entry, ok := c.fallback[symbol]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, json.Unmarshal(entry.data, dest)
}

// NewRedisClient connects to Redis, returning nil when the address is
// empty or the server is unreachable. Callers treat nil as "fallback
// mode", never as an error.
func NewRedisClient(addr, password string, db int, logger *logging.Logger) *redis.Client {
	if logger == nil {
		logger = logging.WithComponent("redis")
	}
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, signal cache will run in-memory",
			"addr", addr, "error", err)
		_ = client.Close()
		return nil
	}

	logger.Info("Connected to Redis", "addr", addr)
	return client
}
