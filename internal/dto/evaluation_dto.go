package dto

import (
	"github.com/codeway-learn/codeway-api/internal/models"
	"github.com/codeway-learn/codeway-api/internal/repository"
)

// Acting roles accepted on code challenge submissions.
const (
	ActingRoleLearner    = "learner"
	ActingRoleInstructor = "instructor"
)

// Job status values exposed by the result endpoint.
const (
	JobStatusPending = "PENDING"
	JobStatusSuccess = "SUCCESS"
	JobStatusFailure = "FAILURE"
)

// CodeChallengeSubmitRequest is the submit payload for a code challenge step.
type CodeChallengeSubmitRequest struct {
	Code       string `json:"code" validate:"required"`
	ActingRole string `json:"acting_role" validate:"omitempty,oneof=learner instructor"`
}

// EnqueueResponse returns the tracking token for an enqueued evaluation.
type EnqueueResponse struct {
	Token string `json:"token"`
}

// TestResultResponse is the per-test-case detail of a finalized submission.
type TestResultResponse struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	CompileErr     string `json:"compile_err"`
	Status         string `json:"status"`
	Passed         bool   `json:"passed"`
}

// CodeChallengeSubmissionResponse is the finalized submission payload.
type CodeChallengeSubmissionResponse struct {
	CodeChallengeID uint                 `json:"code_challenge_id"`
	LearnerID       uint                 `json:"learner_id"`
	SubmittedCode   string               `json:"submitted_code"`
	Passed          bool                 `json:"passed"`
	ErrorMessage    string               `json:"error_message"`
	TestResults     []TestResultResponse `json:"test_results"`
}

// EvaluationStatusResponse reports the state of an evaluation job.
type EvaluationStatusResponse struct {
	Status     string                           `json:"task_status"`
	Submission *CodeChallengeSubmissionResponse `json:"submission,omitempty"`
	Error      string                           `json:"error,omitempty"`
}

// LanguageResponse mirrors one programming language entry.
type LanguageResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AssessmentStepStatsResponse aggregates learner performance for one step.
type AssessmentStepStatsResponse struct {
	StepID        uint    `json:"step_id"`
	TotalAttempts int64   `json:"total_attempts"`
	TotalLearners int64   `json:"total_learners"`
	SuccessRate   float64 `json:"success_rate"`
}

// NewCodeChallengeSubmissionResponse builds the wire payload for a submission
// and the test results gathered during its latest evaluation round.
func NewCodeChallengeSubmissionResponse(submission models.CodeChallengeSubmission, results []models.TestResult) CodeChallengeSubmissionResponse {
	testResults := make([]TestResultResponse, 0, len(results))
	for _, result := range results {
		testResults = append(testResults, TestResultResponse{
			Input:          result.TestCase.Input,
			ExpectedOutput: result.TestCase.ExpectedOutput,
			Stdout:         result.Stdout,
			Stderr:         result.Stderr,
			CompileErr:     result.CompileOutput,
			Status:         result.Status,
			Passed:         result.Passed,
		})
	}

	return CodeChallengeSubmissionResponse{
		CodeChallengeID: submission.StepID,
		LearnerID:       submission.LearnerID,
		SubmittedCode:   submission.SubmittedCode,
		Passed:          submission.Passed,
		ErrorMessage:    submission.ErrorMessage,
		TestResults:     testResults,
	}
}

// NewLanguageResponseSlice converts language models into responses.
func NewLanguageResponseSlice(languages []models.ProgrammingLanguage) []LanguageResponse {
	responses := make([]LanguageResponse, 0, len(languages))
	for _, language := range languages {
		responses = append(responses, LanguageResponse{ID: language.ID, Name: language.Name})
	}
	return responses
}

// NewAssessmentStepStatsResponse derives the success rate from raw aggregates.
func NewAssessmentStepStatsResponse(stats repository.AssessmentStepStats) AssessmentStepStatsResponse {
	response := AssessmentStepStatsResponse{
		StepID:        stats.StepID,
		TotalAttempts: stats.TotalAttempts,
		TotalLearners: stats.TotalLearners,
	}
	if stats.TotalLearners > 0 {
		response.SuccessRate = float64(stats.PassCount) / float64(stats.TotalLearners) * 100
	}
	return response
}
