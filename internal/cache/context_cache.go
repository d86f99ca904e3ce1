// Package cache provides a best-effort redis cache for aggregated context
// records. This package is internal and should not be imported by external
// projects.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/config"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/types"
)

// ContextCache caches merged context records keyed by assignment and student.
// All failures are soft: a cache error never fails aggregation, it only
// forces a fresh read.
type ContextCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a context cache from configuration.
func New(cfg config.CacheConfig, logger *zap.Logger) *ContextCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.TTL, logger)
}

// NewWithClient creates a context cache around an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ContextCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "context_cache")),
	}
}

func key(assignmentID, studentID string) string {
	return fmt.Sprintf("ctx:%s:%s", assignmentID, studentID)
}

// Get returns the cached context record, or nil on miss or error.
func (c *ContextCache) Get(ctx context.Context, assignmentID, studentID string) *types.ContextRecord {
	data, err := c.client.Get(ctx, key(assignmentID, studentID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache get failed", zap.Error(err))
		}
		return nil
	}

	var record types.ContextRecord
	if err := json.Unmarshal(data, &record); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.Error(err))
		_ = c.client.Del(ctx, key(assignmentID, studentID)).Err()
		return nil
	}
	return &record
}

// Set stores a context record with the configured TTL.
func (c *ContextCache) Set(ctx context.Context, record *types.ContextRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	k := key(record.Assignment.ID, record.Student.ID)
	if err := c.client.Set(ctx, k, data, c.ttl).Err(); err != nil {
		c.logger.Debug("cache set failed", zap.Error(err))
	}
}

// InvalidateStudent drops all cached records for one student, used when the
// student's profile changes.
func (c *ContextCache) InvalidateStudent(ctx context.Context, studentID string) {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("ctx:*:%s", studentID), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Debug("cache invalidate failed", zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Debug("cache scan failed", zap.Error(err))
	}
}

// Close releases the underlying client.
func (c *ContextCache) Close() error {
	return c.client.Close()
}
