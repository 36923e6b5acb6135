package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/dto"
	"github.com/codeway-learn/codeway-api/internal/observability"
	"github.com/codeway-learn/codeway-api/internal/service"
)

const (
	// DefaultSubject is the NATS subject evaluation jobs are dispatched on.
	DefaultSubject = "codeway.evaluations"
	// DefaultMaxAttempts bounds scheduler-level retries per job.
	DefaultMaxAttempts = 3

	queueGroup = "evaluation-workers"
)

// ErrBlankCode rejects jobs without source code before they are enqueued.
var ErrBlankCode = errors.New("code must not be blank")

// Job is the wire payload dispatched to evaluation workers.
type Job struct {
	Token   string                `json:"token"`
	Attempt int                   `json:"attempt"`
	Payload service.EvaluationJob `json:"payload"`
}

// Queue is the boundary between the synchronous HTTP layer and the
// asynchronous evaluation workers. Enqueue returns a tracking token
// immediately; Status reports PENDING until the job reaches a terminal state.
// Jobs travel over NATS when a connection is configured and fall back to an
// in-process goroutine otherwise.
type Queue struct {
	evaluations service.EvaluationService
	store       *JobStore
	nats        *nats.Conn
	subject     string
	maxAttempts int
	logger      zerolog.Logger
}

// Config customises queue behaviour.
type Config struct {
	Subject     string
	MaxAttempts int
}

// NewQueue constructs the scheduling shim.
func NewQueue(evaluations service.EvaluationService, store *JobStore, natsConn *nats.Conn, logger zerolog.Logger, cfg Config) *Queue {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Queue{
		evaluations: evaluations,
		store:       store,
		nats:        natsConn,
		subject:     subject,
		maxAttempts: maxAttempts,
		logger:      logger.With().Str("component", "evaluation_queue").Logger(),
	}
}

// Start subscribes the worker side of the queue. A queue group keeps each job
// on exactly one worker when several instances run.
func (q *Queue) Start(ctx context.Context) error {
	if q.nats == nil {
		q.logger.Info().Msg("nats not configured, jobs run in-process")
		return nil
	}

	subscription, err := q.nats.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Error().Err(err).Msg("discarding malformed evaluation job")
			return
		}
		q.process(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("subscribe evaluation jobs: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := subscription.Unsubscribe(); err != nil {
			q.logger.Warn().Err(err).Msg("failed to unsubscribe evaluation worker")
		}
	}()

	return nil
}

// Enqueue registers a pending job and dispatches it, returning the tracking
// token without waiting on any judge I/O.
func (q *Queue) Enqueue(ctx context.Context, payload service.EvaluationJob) (string, error) {
	if strings.TrimSpace(payload.Code) == "" {
		return "", ErrBlankCode
	}

	token := uuid.NewString()
	if err := q.store.Put(ctx, token, Record{Status: dto.JobStatusPending}); err != nil {
		return "", err
	}

	job := Job{Token: token, Attempt: 1, Payload: payload}
	if err := q.dispatch(job); err != nil {
		return "", err
	}

	q.logger.Debug().
		Str("token", token).
		Uint("step_id", payload.StepID).
		Uint("learner_id", payload.LearnerID).
		Msg("evaluation job enqueued")
	return token, nil
}

// Status resolves a tracking token. Unknown tokens read as PENDING, matching
// the poll-until-terminal contract: a token may be observed before its first
// record write is visible.
func (q *Queue) Status(ctx context.Context, token string) (dto.EvaluationStatusResponse, error) {
	record, found, err := q.store.Get(ctx, token)
	if err != nil {
		return dto.EvaluationStatusResponse{}, err
	}
	if !found {
		return dto.EvaluationStatusResponse{Status: dto.JobStatusPending}, nil
	}

	return dto.EvaluationStatusResponse{
		Status:     record.Status,
		Submission: record.Submission,
		Error:      record.Error,
	}, nil
}

func (q *Queue) dispatch(job Job) error {
	if q.nats == nil {
		go q.process(context.Background(), job)
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal evaluation job: %w", err)
	}
	if err := q.nats.Publish(q.subject, payload); err != nil {
		return fmt.Errorf("publish evaluation job: %w", err)
	}
	return nil
}

func (q *Queue) process(ctx context.Context, job Job) {
	response, err := q.evaluations.Evaluate(ctx, job.Payload)
	if err == nil {
		record := Record{Status: dto.JobStatusSuccess, Submission: &response}
		if storeErr := q.store.Put(ctx, job.Token, record); storeErr != nil {
			q.logger.Error().Err(storeErr).Str("token", job.Token).Msg("failed to store job success")
		}
		return
	}

	if service.IsRetryable(err) && job.Attempt < q.maxAttempts {
		observability.JobRequeues().Inc()
		q.logger.Warn().Err(err).
			Str("token", job.Token).
			Int("attempt", job.Attempt).
			Msg("requeueing evaluation job")

		job.Attempt++
		if dispatchErr := q.dispatch(job); dispatchErr == nil {
			return
		}
		// Requeue failed, fall through and record the original error.
	}

	record := Record{Status: dto.JobStatusFailure, Error: err.Error()}
	if storeErr := q.store.Put(ctx, job.Token, record); storeErr != nil {
		q.logger.Error().Err(storeErr).Str("token", job.Token).Msg("failed to store job failure")
	}
}
