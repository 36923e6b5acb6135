package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/config"
	"github.com/codeway-learn/codeway-api/internal/database"
	"github.com/codeway-learn/codeway-api/internal/handler"
	"github.com/codeway-learn/codeway-api/internal/middleware"
	"github.com/codeway-learn/codeway-api/internal/models"
	"github.com/codeway-learn/codeway-api/internal/repository"
	"github.com/codeway-learn/codeway-api/internal/router"
	"github.com/codeway-learn/codeway-api/internal/service"
	"github.com/codeway-learn/codeway-api/internal/worker"
	"github.com/codeway-learn/codeway-api/pkg/judge0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.CodeChallengeStep{},
		&models.TestCase{},
		&models.CodeChallengeSubmission{},
		&models.TestResult{},
		&models.LearnerAssessmentPerformance{},
		&models.ProgrammingLanguage{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	judgeClient, err := judge0.New(judge0.Config{
		BaseURL:   cfg.JudgeBaseURL,
		AuthToken: cfg.JudgeAuthToken,
		Timeout:   cfg.JudgeTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create judge client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	challengeRepo := repository.NewChallengeRepository(db)
	submissionRepo := repository.NewCodeSubmissionRepository(db)
	performanceRepo := repository.NewPerformanceRepository(db)
	languageRepo := repository.NewLanguageRepository(db)

	stepCache := service.NewStepCache(redisClient, cfg.StepCacheTTL, logger)
	performanceService := service.NewPerformanceService(performanceRepo, logger)
	evaluationService := service.NewEvaluationService(challengeRepo, submissionRepo, performanceService, judgeClient, stepCache, logger, service.EvaluationConfig{
		BatchSize:      cfg.BatchSize,
		PollMaxRetries: cfg.PollMaxRetries,
		PollInterval:   cfg.PollInterval,
	})
	languageService := service.NewLanguageService(languageRepo, judgeClient, redisClient, logger)

	jobStore := worker.NewJobStore(redisClient, cfg.JobRecordTTL)
	queue := worker.NewQueue(evaluationService, jobStore, natsConn, logger, worker.Config{
		MaxAttempts: cfg.JobMaxAttempts,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if err := queue.Start(workerCtx); err != nil {
		log.Fatalf("failed to start evaluation worker: %v", err)
	}

	syncCtx, cancelSync := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := languageService.SyncFromJudge(syncCtx); err != nil {
		logger.Warn().Err(err).Msg("language catalog sync failed, serving stored languages")
	}
	cancelSync()

	evaluationHandler := handler.NewEvaluationHandler(queue, challengeRepo, stepCache, validate, logger)
	languageHandler := handler.NewLanguageHandler(languageService, logger)
	performanceHandler := handler.NewPerformanceHandler(performanceService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler:  evaluationHandler,
		LanguageHandler:    languageHandler,
		PerformanceHandler: performanceHandler,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
