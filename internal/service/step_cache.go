package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/models"
)

// DefaultStepCacheTTL bounds how long a cached step definition stays valid
// between request-time submission and worker-time execution.
const DefaultStepCacheTTL = 5 * time.Minute

// StepCache is a short-lived write-through cache for code challenge steps.
// Correctness never depends on a warm cache; a miss falls back to the durable
// store, the cache only saves the second fetch.
type StepCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStepCache builds a step cache with the provided TTL.
func NewStepCache(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *StepCache {
	if ttl <= 0 {
		ttl = DefaultStepCacheTTL
	}
	return &StepCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.With().Str("component", "step_cache").Logger(),
	}
}

func stepCacheKey(stepID uint) string {
	return fmt.Sprintf("code_challenge_%d", stepID)
}

// Put stores the step definition, test cases included. Failures are logged
// and swallowed; the worker will re-fetch from the database.
func (c *StepCache) Put(ctx context.Context, step models.CodeChallengeStep) {
	if c.redis == nil {
		return
	}

	payload, err := json.Marshal(step)
	if err != nil {
		c.logger.Warn().Err(err).Uint("step_id", step.ID).Msg("failed to marshal step for cache")
		return
	}

	if err := c.redis.Set(ctx, stepCacheKey(step.ID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("step_id", step.ID).Msg("failed to cache step")
	}
}

// Get returns the cached step and whether it was found.
func (c *StepCache) Get(ctx context.Context, stepID uint) (models.CodeChallengeStep, bool) {
	if c.redis == nil {
		return models.CodeChallengeStep{}, false
	}

	payload, err := c.redis.Get(ctx, stepCacheKey(stepID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Uint("step_id", stepID).Msg("failed to read step cache")
		}
		return models.CodeChallengeStep{}, false
	}

	var step models.CodeChallengeStep
	if err := json.Unmarshal([]byte(payload), &step); err != nil {
		c.logger.Warn().Err(err).Uint("step_id", stepID).Msg("corrupt step cache entry")
		return models.CodeChallengeStep{}, false
	}

	return step, true
}
