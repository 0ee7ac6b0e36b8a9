package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vidproxy/vidproxy/internal/domain/repository"
)

// versionKeyPrefix namespaces version counters within their Redis database.
const versionKeyPrefix = "v:"

// VersionStore implements repository.VersionStore on a dedicated Redis
// database. Versions default to 1 when absent and only matter for upstream
// cache busting, so a dropped write is benign.
type VersionStore struct {
	client *redis.Client
}

var _ repository.VersionStore = (*VersionStore)(nil)

// NewVersionStore creates a Redis-backed version store.
func NewVersionStore(client *redis.Client) *VersionStore {
	return &VersionStore{client: client}
}

// Get returns the stored version for cacheKey and whether a counter exists.
// Absent counters report (1, false).
func (s *VersionStore) Get(ctx context.Context, cacheKey string) (int, bool, error) {
	value, err := s.client.Get(ctx, versionKeyPrefix+cacheKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 1, false, nil
		}
		return 0, false, fmt.Errorf("version get: %w", err)
	}

	version, err := strconv.Atoi(value)
	if err != nil || version < 1 {
		// A corrupt counter resets to the default rather than failing reads.
		return 1, true, nil
	}
	return version, true, nil
}

// Seed establishes an absent counter at the default version. Concurrent
// seeds for the same key are idempotent.
func (s *VersionStore) Seed(ctx context.Context, cacheKey string) error {
	if err := s.client.SetNX(ctx, versionKeyPrefix+cacheKey, "1", 0).Err(); err != nil {
		return fmt.Errorf("version seed: %w", err)
	}
	return nil
}

// Increment atomically bumps the counter and returns the new value. A fresh
// key increments from an implicit 1, so the first bump yields 2.
func (s *VersionStore) Increment(ctx context.Context, cacheKey string) (int, error) {
	key := versionKeyPrefix + cacheKey

	// Seed absent counters at the default so INCR lands on default+1.
	if err := s.client.SetNX(ctx, key, "1", 0).Err(); err != nil {
		return 0, fmt.Errorf("version seed: %w", err)
	}

	version, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("version incr: %w", err)
	}
	return int(version), nil
}
