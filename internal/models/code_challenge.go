package models

import "time"

// CodeChallengeStep describes a code challenge attached to a lesson, together
// with the ordered test cases the judge runs a submission against. The step is
// immutable while an evaluation is in flight.
type CodeChallengeStep struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	Description      string     `gorm:"type:text" json:"description"`
	LanguageID       int64      `gorm:"not null" json:"language_id"`
	InitialCode      string     `gorm:"type:text" json:"initial_code"`
	ProposedSolution string     `gorm:"type:text" json:"proposed_solution"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	TestCases        []TestCase `gorm:"foreignKey:StepID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases"`
}

// TestCase holds one input/expected-output pair for a code challenge step.
// Payloads are stored base64 encoded, the format the judge exchanges.
type TestCase struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	StepID         uint   `gorm:"not null;index" json:"step_id"`
	Position       int    `gorm:"not null;default:0" json:"position"`
	Input          string `gorm:"type:text" json:"input"`
	ExpectedOutput string `gorm:"type:text" json:"expected_output"`
}

// ProgrammingLanguage mirrors a language entry exposed by the judge.
type ProgrammingLanguage struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;not null" json:"name"`
}
