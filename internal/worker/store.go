package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeway-learn/codeway-api/internal/dto"
)

// DefaultRecordTTL bounds how long a finished job result stays retrievable.
const DefaultRecordTTL = 24 * time.Hour

// Record is the persisted state of one evaluation job, looked up by token.
type Record struct {
	Status     string                               `json:"status"`
	Submission *dto.CodeChallengeSubmissionResponse `json:"submission,omitempty"`
	Error      string                               `json:"error,omitempty"`
}

// JobStore keeps job records in Redis so any API instance can answer a status
// poll regardless of which worker ran the job.
type JobStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewJobStore builds a job store with the given record TTL.
func NewJobStore(redisClient *redis.Client, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &JobStore{redis: redisClient, ttl: ttl}
}

func recordKey(token string) string {
	return "evaluation_job:" + token
}

// Put stores or replaces the record for a token.
func (s *JobStore) Put(ctx context.Context, token string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	if err := s.redis.Set(ctx, recordKey(token), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job record: %w", err)
	}
	return nil
}

// Get returns the record for a token and whether it exists.
func (s *JobStore) Get(ctx context.Context, token string) (Record, bool, error) {
	payload, err := s.redis.Get(ctx, recordKey(token)).Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read job record: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return Record{}, false, fmt.Errorf("decode job record: %w", err)
	}
	return record, true, nil
}
