package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/dto"
	"github.com/codeway-learn/codeway-api/internal/models"
	"github.com/codeway-learn/codeway-api/internal/repository"
)

// PerformanceService tracks attempts and pass state per learner and
// assessment step, uniformly across step kinds.
type PerformanceService interface {
	Begin(ctx context.Context, learnerID, stepID uint, stepKind string) (PerformanceRun, error)
	Reconcile(ctx context.Context, run PerformanceRun, passed bool) error
	StatsForStep(ctx context.Context, stepID uint) (dto.AssessmentStepStatsResponse, error)
}

// PerformanceRun captures the performance record state observed at the start
// of an evaluation run, which the reconciliation rule depends on.
type PerformanceRun struct {
	Record        models.LearnerAssessmentPerformance
	Existed       bool
	AlreadyPassed bool
}

// NewPerformanceService constructs a performance service.
func NewPerformanceService(repo repository.PerformanceRepository, logger zerolog.Logger) PerformanceService {
	return &performanceService{
		repo:   repo,
		logger: logger.With().Str("component", "performance_service").Logger(),
	}
}

type performanceService struct {
	repo   repository.PerformanceRepository
	logger zerolog.Logger
}

// Begin loads or creates the performance record for this run. A freshly
// created record starts at attempts=1, passed=false.
func (s *performanceService) Begin(ctx context.Context, learnerID, stepID uint, stepKind string) (PerformanceRun, error) {
	record, created, err := s.repo.GetOrCreate(ctx, learnerID, stepID, stepKind)
	if err != nil {
		return PerformanceRun{}, err
	}

	return PerformanceRun{
		Record:        record,
		Existed:       !created,
		AlreadyPassed: !created && record.Passed,
	}, nil
}

// Reconcile applies the attempt accounting rule once a run reaches a terminal
// state:
//   - a record created by this run keeps attempts=1 and takes the run outcome;
//   - a record that had already passed is left untouched, resubmitting after a
//     pass never penalizes the learner;
//   - otherwise attempts increments once and passed takes the run outcome, so
//     passed can flip false to true but never back.
func (s *performanceService) Reconcile(ctx context.Context, run PerformanceRun, passed bool) error {
	record := run.Record

	switch {
	case !run.Existed:
		record.Passed = passed
	case run.AlreadyPassed:
		return nil
	default:
		record.Attempts++
		record.Passed = passed
	}

	if err := s.repo.Update(ctx, &record); err != nil {
		return err
	}

	s.logger.Debug().
		Uint("learner_id", record.LearnerID).
		Uint("step_id", record.StepID).
		Uint("attempts", record.Attempts).
		Bool("passed", record.Passed).
		Msg("performance record reconciled")
	return nil
}

// StatsForStep aggregates performance rows into instructor-facing statistics.
func (s *performanceService) StatsForStep(ctx context.Context, stepID uint) (dto.AssessmentStepStatsResponse, error) {
	stats, err := s.repo.StatsForStep(ctx, stepID)
	if err != nil {
		return dto.AssessmentStepStatsResponse{}, err
	}
	return dto.NewAssessmentStepStatsResponse(stats), nil
}
