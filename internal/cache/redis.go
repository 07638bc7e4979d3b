// Package cache mirrors the latest signal status into Redis for out-of-process readers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	observations "signalwatch/internal/observations/domain"
)

const (
	// LatestKey holds the JSON of the most recent observation.
	LatestKey = "signalwatch:latest"
	// RecentKey is a capped list of recent observations, newest first.
	RecentKey = "signalwatch:recent"
	// DefaultRecentSize bounds RecentKey.
	DefaultRecentSize = 1000
	// LatestTTL expires the latest status when the monitor stops publishing.
	LatestTTL = time.Hour
)

// ErrEmpty is returned when no status has been published yet.
var ErrEmpty = errors.New("cache: no status published")

// StatusCache publishes observations to Redis.
type StatusCache struct {
	client     *redis.Client
	recentSize int64
	timeout    time.Duration
	logger     *log.Logger
}

// NewStatusCache connects to Redis and verifies the connection.
func NewStatusCache(ctx context.Context, addr, password string, db int, logger *log.Logger) (*StatusCache, error) {
	if addr == "" {
		return nil, errors.New("cache: empty redis addr")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StatusCache{
		client:     client,
		recentSize: DefaultRecentSize,
		timeout:    3 * time.Second,
		logger:     logger,
	}, nil
}

// Publish implements the monitor sink. Failures are logged and never block the cycle.
func (c *StatusCache) Publish(ctx context.Context, obs observations.Observation) {
	if c == nil {
		return
	}
	if err := c.Store(ctx, obs); err != nil {
		c.logger.Printf("status cache error: observation=%d err=%v", obs.SequenceID, err)
	}
}

// Store writes obs as the latest status and pushes it onto the recent list.
func (c *StatusCache) Store(ctx context.Context, obs observations.Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, LatestKey, data, LatestTTL)
	pipe.LPush(ctx, RecentKey, data)
	pipe.LTrim(ctx, RecentKey, 0, c.recentSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache observation: %w", err)
	}
	return nil
}

// Latest returns the most recently published observation.
func (c *StatusCache) Latest(ctx context.Context) (observations.Observation, error) {
	var obs observations.Observation
	data, err := c.client.Get(ctx, LatestKey).Bytes()
	if err == redis.Nil {
		return obs, ErrEmpty
	}
	if err != nil {
		return obs, err
	}
	if err := json.Unmarshal(data, &obs); err != nil {
		return obs, err
	}
	return obs, nil
}

// Recent returns at most count observations, newest first.
func (c *StatusCache) Recent(ctx context.Context, count int64) ([]observations.Observation, error) {
	if count <= 0 {
		return []observations.Observation{}, nil
	}
	data, err := c.client.LRange(ctx, RecentKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent observations: %w", err)
	}
	result := make([]observations.Observation, 0, len(data))
	for _, d := range data {
		var obs observations.Observation
		if err := json.Unmarshal([]byte(d), &obs); err != nil {
			continue
		}
		result = append(result, obs)
	}
	return result, nil
}

// Ping checks the connection.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection.
func (c *StatusCache) Close() error {
	return c.client.Close()
}

// flush clears both keys (tests only).
func (c *StatusCache) flush(ctx context.Context) error {
	return c.client.Del(ctx, LatestKey, RecentKey).Err()
}
