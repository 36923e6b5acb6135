package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codeway-learn/codeway-api/internal/models"
	"github.com/codeway-learn/codeway-api/internal/repository"
	"github.com/codeway-learn/codeway-api/pkg/judge0"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// stubJudge scripts judge responses per global submission index. Unscripted
// submissions come back Accepted on the first poll.
type stubJudge struct {
	submitted    [][]judge0.Submission
	submitErr    error
	script       map[int]judge0.Result
	pollErrs     int
	pollCalls    int
	alwaysQueued bool

	resultByToken map[string]judge0.Result
	nextIndex     int
}

func (s *stubJudge) SubmitBatch(ctx context.Context, submissions []judge0.Submission) ([]string, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, submissions)
	if s.resultByToken == nil {
		s.resultByToken = make(map[string]judge0.Result)
	}

	tokens := make([]string, len(submissions))
	for i := range submissions {
		token := fmt.Sprintf("tok-%d", s.nextIndex)
		result, scripted := s.script[s.nextIndex]
		if !scripted {
			result = judge0.Result{Status: judge0.Status{ID: 3, Description: models.JudgeStatusAccepted}}
		}
		result.Token = token
		s.resultByToken[token] = result
		tokens[i] = token
		s.nextIndex++
	}
	return tokens, nil
}

func (s *stubJudge) GetBatchResults(ctx context.Context, tokens []string) ([]judge0.Result, error) {
	s.pollCalls++
	if s.pollErrs > 0 {
		s.pollErrs--
		return nil, errors.New("judge unavailable")
	}

	results := make([]judge0.Result, 0, len(tokens))
	for _, token := range tokens {
		if s.alwaysQueued {
			results = append(results, judge0.Result{Token: token, Status: judge0.Status{ID: 1, Description: models.JudgeStatusInQueue}})
			continue
		}
		results = append(results, s.resultByToken[token])
	}
	return results, nil
}

func (s *stubJudge) ListLanguages(ctx context.Context) ([]judge0.Language, error) {
	return nil, nil
}

type evaluationFixture struct {
	service EvaluationService
	judge   *stubJudge
	db      *gorm.DB
}

func setupEvaluationDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CodeChallengeStep{},
		&models.TestCase{},
		&models.CodeChallengeSubmission{},
		&models.TestResult{},
		&models.LearnerAssessmentPerformance{},
	))
	return db
}

func newEvaluationFixture(t *testing.T, caseCount int, judge *stubJudge, cfg EvaluationConfig) evaluationFixture {
	t.Helper()
	db := setupEvaluationDB(t)

	step := models.CodeChallengeStep{ID: 1, Title: "Echo input", LanguageID: 71}
	for i := 0; i < caseCount; i++ {
		step.TestCases = append(step.TestCases, models.TestCase{
			StepID:         1,
			Position:       i,
			Input:          b64(fmt.Sprintf("%d\n", i)),
			ExpectedOutput: b64(fmt.Sprintf("%d\n", i)),
		})
	}
	require.NoError(t, db.Create(&step).Error)

	performance := NewPerformanceService(repository.NewPerformanceRepository(db), zerolog.Nop())
	svc := NewEvaluationService(
		repository.NewChallengeRepository(db),
		repository.NewCodeSubmissionRepository(db),
		performance,
		judge,
		nil,
		zerolog.Nop(),
		cfg,
	)
	svc.(*evaluationService).sleep = func(time.Duration) {}

	return evaluationFixture{service: svc, judge: judge, db: db}
}

func TestEvaluateSplitsLargeCaseSetsIntoBatches(t *testing.T) {
	fixture := newEvaluationFixture(t, 25, &stubJudge{}, EvaluationConfig{})

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.True(t, response.Passed)
	require.Len(t, response.TestResults, 25)

	require.Len(t, fixture.judge.submitted, 2)
	require.Len(t, fixture.judge.submitted[0], 20)
	require.Len(t, fixture.judge.submitted[1], 5)
}

func TestEvaluatePassingRun(t *testing.T) {
	fixture := newEvaluationFixture(t, 1, &stubJudge{}, EvaluationConfig{})
	code := "print(input())"

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: code, StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.True(t, response.Passed)
	require.Empty(t, response.ErrorMessage)
	require.Equal(t, code, response.SubmittedCode)

	require.Len(t, fixture.judge.submitted, 1)
	require.Equal(t, code, fixture.judge.submitted[0][0].SourceCode)
	require.Equal(t, int64(71), fixture.judge.submitted[0][0].LanguageID)
	require.Equal(t, b64("0\n"), fixture.judge.submitted[0][0].Stdin)

	var submission models.CodeChallengeSubmission
	require.NoError(t, fixture.db.First(&submission, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.True(t, submission.Passed)
	require.Equal(t, code, submission.SubmittedCode)
	require.Empty(t, submission.ErrorMessage)

	var record models.LearnerAssessmentPerformance
	require.NoError(t, fixture.db.First(&record, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, uint(1), record.Attempts)
	require.True(t, record.Passed)
	require.Equal(t, models.AssessmentKindCodeChallenge, record.StepKind)
}

func TestEvaluateAbortsOnExecutionError(t *testing.T) {
	judge := &stubJudge{script: map[int]judge0.Result{
		1: {
			Status: judge0.Status{ID: 11, Description: "Runtime Error (NZEC)"},
			Stderr: b64("NameError: name 'x' is not defined"),
		},
	}}
	fixture := newEvaluationFixture(t, 3, judge, EvaluationConfig{})

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print(x)", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.False(t, response.Passed)
	require.Contains(t, response.ErrorMessage, "NameError: name 'x' is not defined")
	require.True(t, strings.HasPrefix(response.ErrorMessage, "Error: "))

	var submission models.CodeChallengeSubmission
	require.NoError(t, fixture.db.First(&submission, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.False(t, submission.Passed)
	require.Empty(t, submission.SubmittedCode, "failing code must not be committed")

	var record models.LearnerAssessmentPerformance
	require.NoError(t, fixture.db.First(&record, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, uint(1), record.Attempts)
	require.False(t, record.Passed)
}

func TestEvaluateContinueOnErrorRunsEveryCase(t *testing.T) {
	judge := &stubJudge{script: map[int]judge0.Result{
		1: {
			Status: judge0.Status{ID: 11, Description: "Runtime Error (NZEC)"},
			Stderr: b64("ZeroDivisionError: division by zero"),
		},
	}}
	fixture := newEvaluationFixture(t, 3, judge, EvaluationConfig{})

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print(1/0)", StepID: 1, LearnerID: 10, ContinueOnError: true,
	})
	require.NoError(t, err)
	require.False(t, response.Passed)
	require.Len(t, response.TestResults, 3)

	terminal := 0
	for _, result := range response.TestResults {
		if result.Status != "" {
			terminal++
		}
	}
	require.Equal(t, 3, terminal, "every case should reach a terminal status")
	require.Empty(t, response.ErrorMessage, "completed runs clear the error message")
}

func TestEvaluateRetriesTransientPollFailures(t *testing.T) {
	judge := &stubJudge{pollErrs: 2}
	fixture := newEvaluationFixture(t, 1, judge, EvaluationConfig{})

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.True(t, response.Passed)
	require.Equal(t, 3, judge.pollCalls)
}

func TestEvaluatePollBudgetExhaustedIsRetryable(t *testing.T) {
	judge := &stubJudge{alwaysQueued: true}
	fixture := newEvaluationFixture(t, 1, judge, EvaluationConfig{PollMaxRetries: 3})

	_, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.ErrorIs(t, err, ErrResultsPending)
	require.True(t, IsRetryable(err))
}

func TestEvaluateSubmitFailureIsRetryable(t *testing.T) {
	judge := &stubJudge{submitErr: errors.New("connection refused")}
	fixture := newEvaluationFixture(t, 1, judge, EvaluationConfig{})

	_, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print(input())", StepID: 1, LearnerID: 10,
	})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestEvaluateUnknownStepFailsTerminally(t *testing.T) {
	db := setupEvaluationDB(t)
	performance := NewPerformanceService(repository.NewPerformanceRepository(db), zerolog.Nop())
	svc := NewEvaluationService(
		repository.NewChallengeRepository(db),
		repository.NewCodeSubmissionRepository(db),
		performance,
		&stubJudge{},
		nil,
		zerolog.Nop(),
		EvaluationConfig{},
	)
	svc.(*evaluationService).sleep = func(time.Duration) {}

	_, err := svc.Evaluate(context.Background(), EvaluationJob{Code: "x", StepID: 404, LearnerID: 10})
	require.ErrorIs(t, err, ErrStepNotFound)
	require.False(t, IsRetryable(err))
}

func TestEvaluateResubmissionUpdatesSingleRow(t *testing.T) {
	fixture := newEvaluationFixture(t, 2, &stubJudge{}, EvaluationConfig{})
	job := EvaluationJob{Code: "print(input())", StepID: 1, LearnerID: 10}

	_, err := fixture.service.Evaluate(context.Background(), job)
	require.NoError(t, err)
	_, err = fixture.service.Evaluate(context.Background(), job)
	require.NoError(t, err)

	var submissionCount int64
	require.NoError(t, fixture.db.Model(&models.CodeChallengeSubmission{}).Count(&submissionCount).Error)
	require.Equal(t, int64(1), submissionCount)

	var resultCount int64
	require.NoError(t, fixture.db.Model(&models.TestResult{}).Count(&resultCount).Error)
	require.Equal(t, int64(2), resultCount, "test result rows are reused across runs")

	var record models.LearnerAssessmentPerformance
	require.NoError(t, fixture.db.First(&record, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, uint(1), record.Attempts, "resubmitting after a pass never adds attempts")
	require.True(t, record.Passed)
}

func TestEvaluateFailingRunKeepsLastPassingCode(t *testing.T) {
	fixture := newEvaluationFixture(t, 1, &stubJudge{}, EvaluationConfig{})
	passingCode := "print(input())"

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: passingCode, StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.True(t, response.Passed)

	// Second run fails its only case with a wrong answer, no execution error.
	fixture.judge.script = map[int]judge0.Result{
		1: {Status: judge0.Status{ID: 4, Description: "Wrong Answer"}, Stdout: b64("nope\n")},
	}

	response, err = fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print('nope')", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.False(t, response.Passed)
	require.Equal(t, passingCode, response.SubmittedCode)

	var submission models.CodeChallengeSubmission
	require.NoError(t, fixture.db.First(&submission, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, passingCode, submission.SubmittedCode)

	var record models.LearnerAssessmentPerformance
	require.NoError(t, fixture.db.First(&record, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, uint(1), record.Attempts)
	require.True(t, record.Passed, "a pass is never reverted by a later failure")
}

func TestEvaluateAbortSkipsLaterBatches(t *testing.T) {
	judge := &stubJudge{script: map[int]judge0.Result{
		0: {
			Status:        judge0.Status{ID: 6, Description: "Compilation Error"},
			CompileOutput: b64("main.c:1: error: expected ';'"),
		},
	}}
	fixture := newEvaluationFixture(t, 4, judge, EvaluationConfig{BatchSize: 2})

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "int main() { return 0 }", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.False(t, response.Passed)
	require.Contains(t, response.ErrorMessage, "expected ';'")

	require.Len(t, fixture.judge.submitted, 1, "later batches are never submitted after an abort")

	var resultCount int64
	require.NoError(t, fixture.db.Model(&models.TestResult{}).Count(&resultCount).Error)
	require.Equal(t, int64(2), resultCount)
}

func TestEvaluateFailedAttemptsAccumulate(t *testing.T) {
	judge := &stubJudge{script: map[int]judge0.Result{
		0: {Status: judge0.Status{ID: 4, Description: "Wrong Answer"}},
		1: {Status: judge0.Status{ID: 4, Description: "Wrong Answer"}},
	}}
	fixture := newEvaluationFixture(t, 1, judge, EvaluationConfig{})
	job := EvaluationJob{Code: "print('wrong')", StepID: 1, LearnerID: 10}

	for i := 0; i < 2; i++ {
		response, err := fixture.service.Evaluate(context.Background(), job)
		require.NoError(t, err)
		require.False(t, response.Passed)
	}

	var record models.LearnerAssessmentPerformance
	require.NoError(t, fixture.db.First(&record, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, uint(2), record.Attempts)
	require.False(t, record.Passed)

	// Third run passes and flips the record for good.
	job.Code = "print(input())"
	response, err := fixture.service.Evaluate(context.Background(), job)
	require.NoError(t, err)
	require.True(t, response.Passed)

	require.NoError(t, fixture.db.First(&record, "learner_id = ? AND step_id = ?", 10, 1).Error)
	require.Equal(t, uint(3), record.Attempts)
	require.True(t, record.Passed)
}

func TestEvaluateStepWithoutCasesPassesVacuously(t *testing.T) {
	fixture := newEvaluationFixture(t, 0, &stubJudge{}, EvaluationConfig{})

	response, err := fixture.service.Evaluate(context.Background(), EvaluationJob{
		Code: "print('anything')", StepID: 1, LearnerID: 10,
	})
	require.NoError(t, err)
	require.True(t, response.Passed)
	require.Empty(t, response.TestResults)
	require.Empty(t, fixture.judge.submitted)
}
