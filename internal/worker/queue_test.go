package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/codeway-learn/codeway-api/internal/dto"
	"github.com/codeway-learn/codeway-api/internal/service"
)

type stubEvaluator struct {
	mu       sync.Mutex
	calls    int
	response dto.CodeChallengeSubmissionResponse
	errs     []error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, job service.EvaluationJob) (dto.CodeChallengeSubmissionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.calls
	s.calls++
	if index < len(s.errs) && s.errs[index] != nil {
		return dto.CodeChallengeSubmissionResponse{}, s.errs[index]
	}
	return s.response, nil
}

func (s *stubEvaluator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func setupQueue(t *testing.T, evaluator *stubEvaluator, cfg Config) *Queue {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	store := NewJobStore(redis.NewClient(&redis.Options{Addr: mini.Addr()}), time.Hour)
	queue := NewQueue(evaluator, store, nil, zerolog.Nop(), cfg)
	require.NoError(t, queue.Start(context.Background()))
	return queue
}

func waitForTerminal(t *testing.T, queue *Queue, token string) dto.EvaluationStatusResponse {
	t.Helper()
	var status dto.EvaluationStatusResponse
	require.Eventually(t, func() bool {
		current, err := queue.Status(context.Background(), token)
		if err != nil {
			return false
		}
		status = current
		return current.Status != dto.JobStatusPending
	}, 2*time.Second, 10*time.Millisecond)
	return status
}

func TestQueueRejectsBlankCode(t *testing.T) {
	queue := setupQueue(t, &stubEvaluator{}, Config{})

	_, err := queue.Enqueue(context.Background(), service.EvaluationJob{Code: "   ", StepID: 1, LearnerID: 10})
	require.ErrorIs(t, err, ErrBlankCode)
}

func TestQueueEnqueueRunsJobToSuccess(t *testing.T) {
	evaluator := &stubEvaluator{response: dto.CodeChallengeSubmissionResponse{
		CodeChallengeID: 1,
		LearnerID:       10,
		Passed:          true,
	}}
	queue := setupQueue(t, evaluator, Config{})

	token, err := queue.Enqueue(context.Background(), service.EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	status := waitForTerminal(t, queue, token)
	require.Equal(t, dto.JobStatusSuccess, status.Status)
	require.NotNil(t, status.Submission)
	require.True(t, status.Submission.Passed)
	require.Equal(t, uint(1), status.Submission.CodeChallengeID)
}

func TestQueueRequeuesRetryableFailures(t *testing.T) {
	evaluator := &stubEvaluator{
		errs:     []error{service.ErrResultsPending, service.ErrResultsPending},
		response: dto.CodeChallengeSubmissionResponse{Passed: true},
	}
	queue := setupQueue(t, evaluator, Config{MaxAttempts: 3})

	token, err := queue.Enqueue(context.Background(), service.EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)

	status := waitForTerminal(t, queue, token)
	require.Equal(t, dto.JobStatusSuccess, status.Status)
	require.Equal(t, 3, evaluator.callCount())
}

func TestQueueExhaustedRetriesEndInFailure(t *testing.T) {
	evaluator := &stubEvaluator{
		errs: []error{service.ErrResultsPending, service.ErrResultsPending, service.ErrResultsPending},
	}
	queue := setupQueue(t, evaluator, Config{MaxAttempts: 3})

	token, err := queue.Enqueue(context.Background(), service.EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)

	status := waitForTerminal(t, queue, token)
	require.Equal(t, dto.JobStatusFailure, status.Status)
	require.Contains(t, status.Error, "pending")
	require.Equal(t, 3, evaluator.callCount())
}

func TestQueueTerminalErrorFailsWithoutRetry(t *testing.T) {
	evaluator := &stubEvaluator{errs: []error{errors.New("code challenge step not found")}}
	queue := setupQueue(t, evaluator, Config{MaxAttempts: 3})

	token, err := queue.Enqueue(context.Background(), service.EvaluationJob{
		Code: "print(input())", StepID: 404, LearnerID: 10,
	})
	require.NoError(t, err)

	status := waitForTerminal(t, queue, token)
	require.Equal(t, dto.JobStatusFailure, status.Status)
	require.Equal(t, 1, evaluator.callCount())
}

func TestQueueUnknownTokenReadsPending(t *testing.T) {
	queue := setupQueue(t, &stubEvaluator{}, Config{})

	status, err := queue.Status(context.Background(), "missing-token")
	require.NoError(t, err)
	require.Equal(t, dto.JobStatusPending, status.Status)
	require.Nil(t, status.Submission)
}

func TestJobStoreRoundTrip(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	store := NewJobStore(redis.NewClient(&redis.Options{Addr: mini.Addr()}), time.Hour)

	record := Record{Status: dto.JobStatusSuccess, Submission: &dto.CodeChallengeSubmissionResponse{Passed: true}}
	require.NoError(t, store.Put(context.Background(), "tok-1", record))

	loaded, found, err := store.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, dto.JobStatusSuccess, loaded.Status)
	require.NotNil(t, loaded.Submission)
	require.True(t, loaded.Submission.Passed)

	_, found, err = store.Get(context.Background(), "tok-2")
	require.NoError(t, err)
	require.False(t, found)
}

func TestJobStoreRecordsExpire(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	store := NewJobStore(redis.NewClient(&redis.Options{Addr: mini.Addr()}), time.Minute)
	require.NoError(t, store.Put(context.Background(), "tok-1", Record{Status: dto.JobStatusFailure, Error: "boom"}))

	mini.FastForward(2 * time.Minute)

	_, found, err := store.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	require.False(t, found)
}
