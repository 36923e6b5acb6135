package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeway-learn/codeway-api/internal/models"
)

// CodeSubmissionRepository persists code challenge submissions and their
// per-test-case results. All writes are single-row upserts so progress stays
// visible while an evaluation run is in flight.
type CodeSubmissionRepository interface {
	GetOrCreate(ctx context.Context, learnerID, stepID uint) (models.CodeChallengeSubmission, bool, error)
	Update(ctx context.Context, submission *models.CodeChallengeSubmission) error
	GetOrCreateTestResult(ctx context.Context, submissionID, testCaseID uint) (models.TestResult, error)
	UpdateTestResult(ctx context.Context, result *models.TestResult) error
	ListTestResults(ctx context.Context, submissionID uint) ([]models.TestResult, error)
}

// NewCodeSubmissionRepository constructs a code submission repository.
func NewCodeSubmissionRepository(db *gorm.DB) CodeSubmissionRepository {
	return &codeSubmissionRepository{db: db}
}

type codeSubmissionRepository struct {
	db *gorm.DB
}

func (r *codeSubmissionRepository) GetOrCreate(ctx context.Context, learnerID, stepID uint) (models.CodeChallengeSubmission, bool, error) {
	submission := models.CodeChallengeSubmission{LearnerID: learnerID, StepID: stepID}
	result := r.db.WithContext(ctx).
		Where(models.CodeChallengeSubmission{LearnerID: learnerID, StepID: stepID}).
		FirstOrCreate(&submission)
	if result.Error != nil {
		return models.CodeChallengeSubmission{}, false, result.Error
	}
	return submission, result.RowsAffected > 0, nil
}

func (r *codeSubmissionRepository) Update(ctx context.Context, submission *models.CodeChallengeSubmission) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(submission).Error
}

func (r *codeSubmissionRepository) GetOrCreateTestResult(ctx context.Context, submissionID, testCaseID uint) (models.TestResult, error) {
	result := models.TestResult{
		CodeChallengeSubmissionID: submissionID,
		TestCaseID:                testCaseID,
	}
	err := r.db.WithContext(ctx).
		Where(models.TestResult{CodeChallengeSubmissionID: submissionID, TestCaseID: testCaseID}).
		FirstOrCreate(&result).Error
	if err != nil {
		return models.TestResult{}, err
	}
	return result, nil
}

func (r *codeSubmissionRepository) UpdateTestResult(ctx context.Context, result *models.TestResult) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(result).Error
}

func (r *codeSubmissionRepository) ListTestResults(ctx context.Context, submissionID uint) ([]models.TestResult, error) {
	var results []models.TestResult
	err := r.db.WithContext(ctx).
		Preload("TestCase").
		Where("code_challenge_submission_id = ?", submissionID).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
