package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSink keeps rolling per-configuration daily discovery counters.
// Best-effort: write failures are logged, never propagated; the execution
// record is the durable source of truth.
type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client, retention time.Duration) *RedisSink {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RedisSink{client: client, retention: retention}
}

// RecordDiscoveries adds count to the configuration's counter for one
// discovery day ("2006-01-02").
func (s *RedisSink) RecordDiscoveries(ctx context.Context, tenantID, configurationID uuid.UUID, day string, count int) {
	if count <= 0 {
		return
	}

	key := buildKey(tenantID, configurationID, day)

	pipe := s.client.Pipeline()
	pipe.IncrBy(ctx, key, int64(count))
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline: %v", err)
	}
}

// Discoveries reads one day's counter back, zero when absent.
func (s *RedisSink) Discoveries(ctx context.Context, tenantID, configurationID uuid.UUID, day string) (int64, error) {
	n, err := s.client.Get(ctx, buildKey(tenantID, configurationID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

func buildKey(tenantID, configurationID uuid.UUID, day string) string {
	return fmt.Sprintf("t:%s:c:%s:discovered:%s", tenantID, configurationID, day)
}
