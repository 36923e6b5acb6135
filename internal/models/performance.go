package models

import "time"

// Assessment step kinds tracked uniformly for performance accounting.
const (
	AssessmentKindQuiz          = "quiz"
	AssessmentKindCodeChallenge = "code_challenge"
	AssessmentKindSorting       = "sorting_problem"
	AssessmentKindTextProblem   = "text_problem"
)

// LearnerAssessmentPerformance keeps one attempts/passed record per
// (learner, assessment step), regardless of the step kind. Attempts start at 1
// and only grow; passed never reverts to false once true.
type LearnerAssessmentPerformance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LearnerID uint      `gorm:"not null;uniqueIndex:idx_learner_assessment" json:"learner_id"`
	StepID    uint      `gorm:"not null;uniqueIndex:idx_learner_assessment" json:"step_id"`
	StepKind  string    `gorm:"size:32;not null" json:"step_kind"`
	Attempts  uint      `gorm:"not null;default:1" json:"attempts"`
	Passed    bool      `gorm:"not null;default:false" json:"passed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
