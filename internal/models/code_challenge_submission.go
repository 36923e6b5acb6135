package models

import (
	"time"

	"gorm.io/datatypes"
)

// Judge status descriptions that are not yet terminal.
const (
	JudgeStatusInQueue    = "In Queue"
	JudgeStatusProcessing = "Processing"
	JudgeStatusAccepted   = "Accepted"
)

// CodeChallengeSubmission is the single row kept per (learner, step) pair.
// Resubmissions update this row in place; there is no submission history.
type CodeChallengeSubmission struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	LearnerID     uint         `gorm:"not null;uniqueIndex:idx_learner_step" json:"learner_id"`
	StepID        uint         `gorm:"not null;uniqueIndex:idx_learner_step" json:"step_id"`
	SubmittedCode string       `gorm:"type:text" json:"submitted_code"`
	Passed        bool         `gorm:"not null;default:false" json:"passed"`
	ErrorMessage  string       `gorm:"type:text" json:"error_message"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	TestResults   []TestResult `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_results"`
}

// TestResult records the judge outcome for one test case of a submission.
// Rows are created lazily per batch and updated once the judge reports a
// terminal status.
type TestResult struct {
	ID                        uint              `gorm:"primaryKey" json:"id"`
	CodeChallengeSubmissionID uint              `gorm:"not null;uniqueIndex:idx_submission_case" json:"submission_id"`
	TestCaseID                uint              `gorm:"not null;uniqueIndex:idx_submission_case" json:"test_case_id"`
	Status                    string            `gorm:"size:64" json:"status"`
	Stdout                    string            `gorm:"type:text" json:"stdout"`
	Stderr                    string            `gorm:"type:text" json:"stderr"`
	CompileOutput             string            `gorm:"type:text" json:"compile_output"`
	Passed                    bool              `gorm:"not null;default:false" json:"passed"`
	Raw                       datatypes.JSONMap `json:"raw"`
	CreatedAt                 time.Time         `json:"created_at"`
	UpdatedAt                 time.Time         `json:"updated_at"`
	TestCase                  TestCase          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_case"`
}

// Terminal reports whether the result carries a final judge status.
func (r TestResult) Terminal() bool {
	return r.Status != "" && r.Status != JudgeStatusInQueue && r.Status != JudgeStatusProcessing
}
