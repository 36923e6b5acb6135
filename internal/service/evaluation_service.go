package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/codeway-learn/codeway-api/internal/dto"
	"github.com/codeway-learn/codeway-api/internal/models"
	"github.com/codeway-learn/codeway-api/internal/observability"
	"github.com/codeway-learn/codeway-api/internal/repository"
	"github.com/codeway-learn/codeway-api/pkg/judge0"
)

// Evaluation pipeline defaults. The poll budget and interval bound each batch
// to roughly 7.5 seconds of waiting before the job is handed back to the
// scheduler for a requeue.
const (
	DefaultPollMaxRetries = 15
	DefaultPollInterval   = 500 * time.Millisecond
)

// ErrStepNotFound indicates the code challenge step does not exist.
var ErrStepNotFound = errors.New("code challenge step not found")

// ErrResultsPending indicates the poll budget ran out with judge results still
// outstanding. The scheduling shim requeues the job on this error.
var ErrResultsPending = errors.New("judge results still pending after poll budget")

type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// IsRetryable reports whether an evaluation error warrants a scheduler-level
// requeue rather than a terminal failure.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrResultsPending) {
		return true
	}
	var retryable retryableError
	return errors.As(err, &retryable)
}

// EvaluationJob identifies one evaluation run: a learner's code against one
// code challenge step.
type EvaluationJob struct {
	Code            string `json:"code"`
	StepID          uint   `json:"step_id"`
	LearnerID       uint   `json:"learner_id"`
	ContinueOnError bool   `json:"continue_on_error"`
}

// EvaluationConfig carries the orchestration knobs.
type EvaluationConfig struct {
	BatchSize      int
	PollMaxRetries int
	PollInterval   time.Duration
}

// EvaluationService drives a learner submission through the judge: batch
// submit, poll, per-test-case bookkeeping, verdict finalization and
// performance reconciliation.
type EvaluationService interface {
	Evaluate(ctx context.Context, job EvaluationJob) (dto.CodeChallengeSubmissionResponse, error)
}

// NewEvaluationService constructs the submission orchestrator.
func NewEvaluationService(
	steps repository.ChallengeRepository,
	submissions repository.CodeSubmissionRepository,
	performance PerformanceService,
	judge judge0.Client,
	stepCache *StepCache,
	logger zerolog.Logger,
	cfg EvaluationConfig,
) EvaluationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollMaxRetries <= 0 {
		cfg.PollMaxRetries = DefaultPollMaxRetries
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &evaluationService{
		steps:       steps,
		submissions: submissions,
		performance: performance,
		judge:       judge,
		stepCache:   stepCache,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/codeway-learn/codeway-api/internal/service/evaluation"),
		config:      cfg,
		sleep:       time.Sleep,
	}
}

type evaluationService struct {
	steps       repository.ChallengeRepository
	submissions repository.CodeSubmissionRepository
	performance PerformanceService
	judge       judge0.Client
	stepCache   *StepCache
	logger      zerolog.Logger
	tracer      trace.Tracer
	config      EvaluationConfig
	sleep       func(time.Duration)
}

func (s *evaluationService) Evaluate(ctx context.Context, job EvaluationJob) (dto.CodeChallengeSubmissionResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("evaluation.step_id", int(job.StepID)),
		attribute.Int("evaluation.learner_id", int(job.LearnerID)),
		attribute.Bool("evaluation.continue_on_error", job.ContinueOnError),
	}
	spanCtx, span := s.tracer.Start(ctx, "evaluation.run", trace.WithAttributes(attrs...))
	defer span.End()

	step, err := s.loadStep(spanCtx, job.StepID)
	if err != nil {
		return dto.CodeChallengeSubmissionResponse{}, err
	}

	submission, _, err := s.submissions.GetOrCreate(spanCtx, job.LearnerID, job.StepID)
	if err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("load submission: %w", err)
	}

	// Clear the previous round's error but keep submitted_code: the code under
	// evaluation travels with the job and only lands on the row after a pass,
	// so a failing resubmission cannot erase the last passing code.
	submission.ErrorMessage = ""
	if err := s.submissions.Update(spanCtx, &submission); err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("reset submission: %w", err)
	}

	perfRun, err := s.performance.Begin(spanCtx, job.LearnerID, job.StepID, models.AssessmentKindCodeChallenge)
	if err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("begin performance run: %w", err)
	}

	for index, batch := range SplitTestCases(step.TestCases, s.config.BatchSize) {
		aborted, err := s.runBatch(spanCtx, job, step, &submission, batch)
		if err != nil {
			return dto.CodeChallengeSubmissionResponse{}, err
		}
		if aborted {
			span.RecordError(errors.New(submission.ErrorMessage))
			s.logger.Info().
				Uint("step_id", job.StepID).
				Uint("learner_id", job.LearnerID).
				Int("batch", index).
				Msg("evaluation aborted on execution error")
			observability.Evaluations().WithLabelValues("aborted").Inc()
			return s.finalizeAborted(spanCtx, submission, perfRun)
		}
	}

	return s.finalize(spanCtx, job, submission, perfRun)
}

// loadStep prefers the cache entry warmed at enqueue time and falls back to
// the durable store.
func (s *evaluationService) loadStep(ctx context.Context, stepID uint) (models.CodeChallengeStep, error) {
	if s.stepCache != nil {
		if step, ok := s.stepCache.Get(ctx, stepID); ok {
			return step, nil
		}
	}

	step, err := s.steps.GetByID(ctx, stepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CodeChallengeStep{}, ErrStepNotFound
		}
		return models.CodeChallengeStep{}, retryableError{fmt.Errorf("load step: %w", err)}
	}
	return step, nil
}

// runBatch submits one batch to the judge and polls until every test case in
// it reaches a terminal status or the poll budget runs out. It reports whether
// the run must abort because of an execution error.
func (s *evaluationService) runBatch(ctx context.Context, job EvaluationJob, step models.CodeChallengeStep, submission *models.CodeChallengeSubmission, batch []models.TestCase) (bool, error) {
	judgeSubmissions := make([]judge0.Submission, 0, len(batch))
	testResults := make([]*models.TestResult, 0, len(batch))

	for _, testCase := range batch {
		result, err := s.submissions.GetOrCreateTestResult(ctx, submission.ID, testCase.ID)
		if err != nil {
			return false, fmt.Errorf("prepare test result: %w", err)
		}
		resultCopy := result
		testResults = append(testResults, &resultCopy)

		judgeSubmissions = append(judgeSubmissions, judge0.Submission{
			SourceCode:     job.Code,
			LanguageID:     step.LanguageID,
			Stdin:          testCase.Input,
			ExpectedOutput: testCase.ExpectedOutput,
		})
	}

	tokens, err := s.judge.SubmitBatch(ctx, judgeSubmissions)
	if err != nil {
		observability.JudgeRequests().WithLabelValues("submit_batch", "error").Inc()
		return false, retryableError{fmt.Errorf("submit batch: %w", err)}
	}
	observability.JudgeRequests().WithLabelValues("submit_batch", "ok").Inc()

	// Tokens come back in request order; the mapping below is what makes the
	// later token-keyed poll results land on the right rows.
	resultByToken := make(map[string]*models.TestResult, len(tokens))
	for i, token := range tokens {
		resultByToken[token] = testResults[i]
	}

	outstanding := append([]string(nil), tokens...)
	retries := 0

	for len(outstanding) > 0 && retries < s.config.PollMaxRetries {
		results, err := s.judge.GetBatchResults(ctx, outstanding)
		if err != nil {
			observability.JudgeRequests().WithLabelValues("get_results", "error").Inc()
			s.logger.Warn().Err(err).Msg("judge poll failed, backing off")
			retries++
			s.sleep(s.config.PollInterval)
			continue
		}
		observability.JudgeRequests().WithLabelValues("get_results", "ok").Inc()

		settled := make(map[string]struct{}, len(results))
		for _, result := range results {
			status := result.Status.Description
			if status == models.JudgeStatusInQueue || status == models.JudgeStatusProcessing {
				continue
			}

			testResult, ok := resultByToken[result.Token]
			if !ok {
				continue
			}
			settled[result.Token] = struct{}{}

			testResult.Status = status
			testResult.Stdout = judge0.DecodeOutput(result.Stdout)
			testResult.Stderr = judge0.DecodeOutput(result.Stderr)
			testResult.CompileOutput = judge0.DecodeOutput(result.CompileOutput)
			testResult.Passed = status == models.JudgeStatusAccepted
			testResult.Raw = datatypes.JSONMap{
				"token":     result.Token,
				"status_id": result.Status.ID,
				"time":      result.Time,
				"memory":    result.Memory,
				"message":   judge0.DecodeOutput(result.Message),
			}

			if err := s.submissions.UpdateTestResult(ctx, testResult); err != nil {
				return false, fmt.Errorf("persist test result: %w", err)
			}

			if executionError := firstNonEmpty(testResult.Stderr, testResult.CompileOutput); executionError != "" {
				submission.ErrorMessage = fmt.Sprintf("Error: %s", executionError)
				submission.Passed = false
				if err := s.submissions.Update(ctx, submission); err != nil {
					return false, fmt.Errorf("persist submission error: %w", err)
				}
				if !job.ContinueOnError {
					return true, nil
				}
			}
		}

		outstanding = removeSettled(outstanding, settled)
		if len(outstanding) > 0 {
			observability.PollRetries().Inc()
			retries++
			s.sleep(s.config.PollInterval)
		}
	}

	if len(outstanding) > 0 {
		s.logger.Warn().
			Int("outstanding", len(outstanding)).
			Int("retries", retries).
			Msg("poll budget exhausted with results outstanding")
		return false, ErrResultsPending
	}

	return false, nil
}

// finalize computes the verdict after every batch completed without an abort.
// submitted_code is committed only on a pass.
func (s *evaluationService) finalize(ctx context.Context, job EvaluationJob, submission models.CodeChallengeSubmission, perfRun PerformanceRun) (dto.CodeChallengeSubmissionResponse, error) {
	results, err := s.submissions.ListTestResults(ctx, submission.ID)
	if err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("list test results: %w", err)
	}

	passed := true
	for _, result := range results {
		if !result.Passed {
			passed = false
			break
		}
	}

	submission.Passed = passed
	submission.ErrorMessage = ""
	if passed {
		submission.SubmittedCode = job.Code
	}
	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("finalize submission: %w", err)
	}

	if err := s.performance.Reconcile(ctx, perfRun, passed); err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("reconcile performance: %w", err)
	}

	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	observability.Evaluations().WithLabelValues(outcome).Inc()

	s.logger.Info().
		Uint("step_id", submission.StepID).
		Uint("learner_id", submission.LearnerID).
		Bool("passed", passed).
		Int("test_results", len(results)).
		Msg("evaluation finalized")

	return dto.NewCodeChallengeSubmissionResponse(submission, results), nil
}

// finalizeAborted persists the failed verdict and returns the partial state
// gathered so far as the run's final result.
func (s *evaluationService) finalizeAborted(ctx context.Context, submission models.CodeChallengeSubmission, perfRun PerformanceRun) (dto.CodeChallengeSubmissionResponse, error) {
	if err := s.performance.Reconcile(ctx, perfRun, false); err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("reconcile performance: %w", err)
	}

	results, err := s.submissions.ListTestResults(ctx, submission.ID)
	if err != nil {
		return dto.CodeChallengeSubmissionResponse{}, fmt.Errorf("list test results: %w", err)
	}

	return dto.NewCodeChallengeSubmissionResponse(submission, results), nil
}

func removeSettled(tokens []string, settled map[string]struct{}) []string {
	if len(settled) == 0 {
		return tokens
	}
	remaining := tokens[:0]
	for _, token := range tokens {
		if _, ok := settled[token]; !ok {
			remaining = append(remaining, token)
		}
	}
	return remaining
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
