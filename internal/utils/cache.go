package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"fmt"           // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// WalletKey is the cache key of a user's wallet
func WalletKey(userID uint) string {
	return fmt.Sprintf("wallet:%d", userID)
}

// HistoryKey is the cache key of one page of a user's transaction history
func HistoryKey(userID uint, page, pageSize int) string {
	return fmt.Sprintf("wallet:%d:transactions:%d:%d", userID, page, pageSize)
}

// WalletCache drops cached wallet reads after the ledger changed a balance
type WalletCache struct {
	rdb *redis.Client
	log *logrus.Entry
}

// NewWalletCache creates a WalletCache
func NewWalletCache(rdb *redis.Client, log *logrus.Entry) *WalletCache {
	return &WalletCache{rdb: rdb, log: log}
}

// InvalidateWallet deletes the wallet entry and every cached history page of the user
func (c *WalletCache) InvalidateWallet(ctx context.Context, userID uint) {
	keys := []string{WalletKey(userID)}
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("wallet:%d:transactions:*", userID), 100).Iterator() // Find history pages
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("Failed to scan cached history")
	}
	if err := DeleteCache(ctx, c.rdb, keys...); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate wallet cache") // Stale reads expire with their TTL
	}
	// Admin listings include every wallet
	c.invalidatePattern(ctx, "admin:*")
}

func (c *WalletCache) invalidatePattern(ctx context.Context, pattern string) {
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).WithField("pattern", pattern).Warn("Failed to scan cache keys")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := DeleteCache(ctx, c.rdb, keys...); err != nil {
		c.log.WithError(err).WithField("pattern", pattern).Warn("Failed to invalidate cache keys")
	}
}
