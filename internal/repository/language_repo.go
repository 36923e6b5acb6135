package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeway-learn/codeway-api/internal/models"
)

// LanguageRepository persists the programming languages synced from the judge.
type LanguageRepository interface {
	List(ctx context.Context) ([]models.ProgrammingLanguage, error)
	ReplaceAll(ctx context.Context, languages []models.ProgrammingLanguage) error
}

// NewLanguageRepository constructs a language repository.
func NewLanguageRepository(db *gorm.DB) LanguageRepository {
	return &languageRepository{db: db}
}

type languageRepository struct {
	db *gorm.DB
}

func (r *languageRepository) List(ctx context.Context) ([]models.ProgrammingLanguage, error) {
	var languages []models.ProgrammingLanguage
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&languages).Error; err != nil {
		return nil, err
	}
	return languages, nil
}

func (r *languageRepository) ReplaceAll(ctx context.Context, languages []models.ProgrammingLanguage) error {
	if len(languages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).
		Create(&languages).Error
}
