// Package cache decorates a device registry with a Redis read-aside cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

// ErrCacheMiss is returned by CacheClient.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or ErrCacheMiss if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// CachedRegistry is a Decorator that adds read-aside caching of TokensFor to
// any DeviceRegistry.
type CachedRegistry struct {
	realStore dispatch.DeviceRegistry
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedRegistry(realStore dispatch.DeviceRegistry, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedRegistry {
	return &CachedRegistry{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedRegistry"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedRegistry) TokensFor(ctx context.Context, userID string) ([]notification.Device, error) {
	key := s.cacheKey(userID)

	var cached []notification.Device
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Cache read failed, falling back to store", "user_id", userID, "err", err)
	}

	fresh, err := s.realStore.TokensFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; a failed fill only costs the next read.
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Debug("Cache fill failed", "user_id", userID, "err", err)
	}
	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

// Register invalidates both the new owner and, when the token moved, the
// previous owner so neither keeps serving a stale device list.
func (s *CachedRegistry) Register(ctx context.Context, device notification.Device) (string, error) {
	previousOwner, err := s.realStore.Register(ctx, device)
	if err != nil {
		return "", err
	}
	keys := []string{s.cacheKey(device.UserID)}
	if previousOwner != "" {
		keys = append(keys, s.cacheKey(previousOwner))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		return previousOwner, fmt.Errorf("cache invalidation failed: %w", err)
	}
	return previousOwner, nil
}

// Unregister must clear the cache even when the store write is a no-op, to
// stop notifications immediately.
func (s *CachedRegistry) Unregister(ctx context.Context, userID, token string) error {
	if err := s.realStore.Unregister(ctx, userID, token); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, s.cacheKey(userID)); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	return nil
}

func (s *CachedRegistry) cacheKey(userID string) string {
	return fmt.Sprintf("notify:devices:%s", userID)
}
