package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-gateway/internal/client"
	"otp-gateway/internal/models"
	"otp-gateway/internal/util"
)

const dispatchPrefix = "otp_dispatch:"

// ErrDispatchNotFound is returned when no live record exists for a phone.
var ErrDispatchNotFound = errors.New("dispatch record not found")

// KeyValueStore is the subset of the Redis client the cache needs.
type KeyValueStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

var _ KeyValueStore = (*client.RedisClient)(nil)

// DispatchCache keeps the latest dispatch record per phone. A newer dispatch
// overwrites the previous one; replacing a record that is still live is
// logged.
type DispatchCache struct {
	store KeyValueStore
}

func NewDispatchCache(store KeyValueStore) *DispatchCache {
	return &DispatchCache{store: store}
}

func dispatchKey(phone string) string {
	return dispatchPrefix + phone
}

func (c *DispatchCache) SaveDispatchRecord(ctx context.Context, record *models.DispatchRecord, ttl time.Duration) error {
	if record == nil || record.Phone == "" {
		return errors.New("dispatch record without phone")
	}
	if ttl <= 0 {
		return fmt.Errorf("invalid dispatch record ttl: %s", ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch record: %w", err)
	}

	remaining, err := c.RemainingTTL(ctx, record.Phone)
	switch {
	case err == nil:
		util.Info("Replacing live dispatch record",
			util.Phone(record.Phone),
			zap.String("dispatch_id", record.DispatchID),
			zap.Duration("remaining_ttl", remaining))
	case !errors.Is(err, ErrDispatchNotFound):
		util.Warn("Failed to read dispatch record ttl", util.Phone(record.Phone), zap.Error(err))
	}

	if err := c.store.Set(ctx, dispatchKey(record.Phone), payload, ttl); err != nil {
		util.Error("Failed to cache dispatch record",
			util.Phone(record.Phone),
			zap.String("dispatch_id", record.DispatchID),
			zap.Error(err))
		return fmt.Errorf("failed to cache dispatch record: %w", err)
	}

	util.Debug("Dispatch record cached",
		util.Phone(record.Phone),
		zap.String("dispatch_id", record.DispatchID),
		zap.String("method", record.Method),
		zap.Duration("ttl", ttl))
	return nil
}

// RemainingTTL reports how long the phone's record stays valid. Redis returns
// negative durations for missing keys; those are reported as not found.
func (c *DispatchCache) RemainingTTL(ctx context.Context, phone string) (time.Duration, error) {
	ttl, err := c.store.TTL(ctx, dispatchKey(phone))
	if err != nil {
		return 0, fmt.Errorf("failed to read dispatch record ttl: %w", err)
	}
	if ttl < 0 {
		return 0, ErrDispatchNotFound
	}
	return ttl, nil
}
