package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codeway-learn/codeway-api/internal/models"
)

// AssessmentStepStats aggregates performance rows for one assessment step.
type AssessmentStepStats struct {
	StepID        uint  `json:"step_id"`
	TotalAttempts int64 `json:"total_attempts"`
	TotalLearners int64 `json:"total_learners"`
	PassCount     int64 `json:"pass_count"`
}

// PerformanceRepository persists per-learner assessment performance records.
type PerformanceRepository interface {
	GetOrCreate(ctx context.Context, learnerID, stepID uint, stepKind string) (models.LearnerAssessmentPerformance, bool, error)
	Update(ctx context.Context, performance *models.LearnerAssessmentPerformance) error
	StatsForStep(ctx context.Context, stepID uint) (AssessmentStepStats, error)
}

// NewPerformanceRepository constructs a performance repository.
func NewPerformanceRepository(db *gorm.DB) PerformanceRepository {
	return &performanceRepository{db: db}
}

type performanceRepository struct {
	db *gorm.DB
}

func (r *performanceRepository) GetOrCreate(ctx context.Context, learnerID, stepID uint, stepKind string) (models.LearnerAssessmentPerformance, bool, error) {
	performance := models.LearnerAssessmentPerformance{
		LearnerID: learnerID,
		StepID:    stepID,
		StepKind:  stepKind,
		Attempts:  1,
	}
	result := r.db.WithContext(ctx).
		Where(models.LearnerAssessmentPerformance{LearnerID: learnerID, StepID: stepID}).
		FirstOrCreate(&performance)
	if result.Error != nil {
		return models.LearnerAssessmentPerformance{}, false, result.Error
	}
	return performance, result.RowsAffected > 0, nil
}

func (r *performanceRepository) Update(ctx context.Context, performance *models.LearnerAssessmentPerformance) error {
	return r.db.WithContext(ctx).Save(performance).Error
}

func (r *performanceRepository) StatsForStep(ctx context.Context, stepID uint) (AssessmentStepStats, error) {
	stats := AssessmentStepStats{StepID: stepID}

	base := r.db.WithContext(ctx).
		Model(&models.LearnerAssessmentPerformance{}).
		Where("step_id = ?", stepID)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalLearners).Error; err != nil {
		return AssessmentStepStats{}, err
	}
	if err := base.Session(&gorm.Session{}).Where("passed = ?", true).Count(&stats.PassCount).Error; err != nil {
		return AssessmentStepStats{}, err
	}

	var totalAttempts *int64
	err := base.Session(&gorm.Session{}).
		Select("SUM(attempts)").
		Scan(&totalAttempts).Error
	if err != nil {
		return AssessmentStepStats{}, err
	}
	if totalAttempts != nil {
		stats.TotalAttempts = *totalAttempts
	}

	return stats, nil
}
