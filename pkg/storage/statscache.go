package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tm2health/platform/pkg/common/models"
)

// ErrNoStats is returned when no cleanup statistics have been cached yet.
var ErrNoStats = errors.New("no statistics available")

const (
	statsKeyPrefix = "cleanup-stats:"
	latestStatsKey = statsKeyPrefix + "latest"
)

// StatsCache keeps recent data quality statistics in Redis so status
// endpoints do not hit Postgres on every poll.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

type cachedStats struct {
	BatchID    string                       `json:"batch_id"`
	CachedAt   time.Time                    `json:"cached_at"`
	Statistics models.DataQualityStatistics `json:"statistics"`
}

// Store caches the statistics under the batch key and as the latest entry.
func (c *StatsCache) Store(ctx context.Context, batchID string, stats models.DataQualityStatistics) error {
	entry := cachedStats{
		BatchID:    batchID,
		CachedAt:   time.Now().UTC(),
		Statistics: stats,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}

	if err := c.client.Set(ctx, statsKeyPrefix+batchID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache batch statistics: %w", err)
	}
	if err := c.client.Set(ctx, latestStatsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache latest statistics: %w", err)
	}
	return nil
}

// Latest returns the most recently cached statistics.
func (c *StatsCache) Latest(ctx context.Context) (*models.DataQualityStatistics, error) {
	return c.fetch(ctx, latestStatsKey)
}

// Batch returns the cached statistics for a single processing batch.
func (c *StatsCache) Batch(ctx context.Context, batchID string) (*models.DataQualityStatistics, error) {
	return c.fetch(ctx, statsKeyPrefix+batchID)
}

func (c *StatsCache) fetch(ctx context.Context, key string) (*models.DataQualityStatistics, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoStats
		}
		return nil, fmt.Errorf("failed to read cached statistics: %w", err)
	}

	var entry cachedStats
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached statistics: %w", err)
	}
	return &entry.Statistics, nil
}
