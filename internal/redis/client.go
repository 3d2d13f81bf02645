package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/trade-sync-service/internal/config"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// SyncStatusChannel is the pub/sub channel carrying sync run outcomes.
const SyncStatusChannel = "sync:status"

// Client wraps the Redis client with sync-specific caching operations
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Account stats caching

// SetAccountStats caches recomputed account aggregates with TTL
func (c *Client) SetAccountStats(ctx context.Context, stats *models.AccountStats, ttl time.Duration) error {
	key := fmt.Sprintf("account:%s:stats", stats.AccountID)
	jsonData, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal account stats: %w", err)
	}
	return c.rdb.Set(ctx, key, jsonData, ttl).Err()
}

// GetAccountStats retrieves cached account aggregates
func (c *Client) GetAccountStats(ctx context.Context, accountID string) (*models.AccountStats, error) {
	key := fmt.Sprintf("account:%s:stats", accountID)
	jsonData, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var stats models.AccountStats
	if err := json.Unmarshal(jsonData, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account stats: %w", err)
	}
	return &stats, nil
}

// Pub/Sub operations for sync status visibility

// PublishSyncStatus publishes a sync run outcome to the status channel
func (c *Client) PublishSyncStatus(ctx context.Context, message interface{}) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.rdb.Publish(ctx, SyncStatusChannel, jsonData).Err()
}

// Subscribe returns a subscription to one or more channels
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}
