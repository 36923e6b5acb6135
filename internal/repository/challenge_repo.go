package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codeway-learn/codeway-api/internal/models"
)

// ChallengeRepository exposes read access to code challenge steps.
type ChallengeRepository interface {
	GetByID(ctx context.Context, id uint) (models.CodeChallengeStep, error)
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db}
}

type challengeRepository struct {
	db *gorm.DB
}

func (r *challengeRepository) GetByID(ctx context.Context, id uint) (models.CodeChallengeStep, error) {
	var step models.CodeChallengeStep
	err := r.db.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&step, id).Error
	if err != nil {
		return models.CodeChallengeStep{}, err
	}
	return step, nil
}
