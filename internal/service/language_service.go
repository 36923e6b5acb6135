package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/dto"
	"github.com/codeway-learn/codeway-api/internal/models"
	"github.com/codeway-learn/codeway-api/internal/repository"
	"github.com/codeway-learn/codeway-api/pkg/judge0"
)

const (
	languagesCacheKey = "programming_languages_list"
	languagesCacheTTL = time.Hour
)

// ErrNoLanguages indicates the language table is empty and the judge sync has
// not run yet.
var ErrNoLanguages = errors.New("no programming languages available")

// LanguageService serves the judge's language catalog through a read-through
// cache and keeps the durable copy in sync with the judge.
type LanguageService interface {
	List(ctx context.Context) ([]dto.LanguageResponse, error)
	SyncFromJudge(ctx context.Context) (int, error)
}

// NewLanguageService constructs a language service.
func NewLanguageService(repo repository.LanguageRepository, judge judge0.Client, redisClient *redis.Client, logger zerolog.Logger) LanguageService {
	return &languageService{
		repo:   repo,
		judge:  judge,
		redis:  redisClient,
		logger: logger.With().Str("component", "language_service").Logger(),
	}
}

type languageService struct {
	repo   repository.LanguageRepository
	judge  judge0.Client
	redis  *redis.Client
	logger zerolog.Logger
}

func (s *languageService) List(ctx context.Context) ([]dto.LanguageResponse, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, languagesCacheKey).Result(); err == nil {
			var responses []dto.LanguageResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &responses); unmarshalErr == nil {
				return responses, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read language cache")
		}
	}

	languages, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(languages) == 0 {
		return nil, ErrNoLanguages
	}

	responses := dto.NewLanguageResponseSlice(languages)

	if s.redis != nil {
		if payload, err := json.Marshal(responses); err == nil {
			if err := s.redis.Set(ctx, languagesCacheKey, payload, languagesCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store language cache")
			}
		}
	}

	return responses, nil
}

// SyncFromJudge refreshes the durable language table from the judge catalog
// and invalidates the cache. Returns the number of languages synced.
func (s *languageService) SyncFromJudge(ctx context.Context) (int, error) {
	judgeLanguages, err := s.judge.ListLanguages(ctx)
	if err != nil {
		return 0, err
	}

	languages := make([]models.ProgrammingLanguage, 0, len(judgeLanguages))
	for _, language := range judgeLanguages {
		languages = append(languages, models.ProgrammingLanguage{ID: language.ID, Name: language.Name})
	}

	if err := s.repo.ReplaceAll(ctx, languages); err != nil {
		return 0, err
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, languagesCacheKey).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate language cache")
		}
	}

	s.logger.Info().Int("count", len(languages)).Msg("language catalog synced from judge")
	return len(languages), nil
}
