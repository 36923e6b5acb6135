package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/codeway-learn/codeway-api/internal/dto"
	"github.com/codeway-learn/codeway-api/internal/repository"
	"github.com/codeway-learn/codeway-api/internal/service"
	"github.com/codeway-learn/codeway-api/internal/utils"
	"github.com/codeway-learn/codeway-api/internal/worker"
)

// EvaluationHandler exposes the code challenge submission pipeline: enqueue a
// submission, then poll the returned token for the verdict.
type EvaluationHandler struct {
	queue     *worker.Queue
	steps     repository.ChallengeRepository
	stepCache *service.StepCache
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler instance.
func NewEvaluationHandler(queue *worker.Queue, steps repository.ChallengeRepository, stepCache *service.StepCache, validate *validator.Validate, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		queue:     queue,
		steps:     steps,
		stepCache: stepCache,
		validator: validate,
		logger:    logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/:id/submissions", h.submit)
	router.Get("/results/:token", h.result)
}

func (h *EvaluationHandler) submit(c *fiber.Ctx) error {
	stepID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	learnerID := userIDFromContext(c)
	if learnerID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "learner identity required")
	}

	var payload dto.CodeChallengeSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	step, err := h.steps.GetByID(c.Context(), stepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "code challenge not found")
		}
		return h.handleError(c, err)
	}

	// Warm the step cache so the worker can skip the second database fetch.
	h.stepCache.Put(c.Context(), step)

	// Instructors previewing a challenge see every test case outcome instead
	// of stopping at the first error.
	continueOnError := payload.ActingRole == dto.ActingRoleInstructor

	token, err := h.queue.Enqueue(c.Context(), service.EvaluationJob{
		Code:            payload.Code,
		StepID:          step.ID,
		LearnerID:       learnerID,
		ContinueOnError: continueOnError,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "evaluation enqueued", dto.EnqueueResponse{Token: token})
}

func (h *EvaluationHandler) result(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "token is required")
	}

	status, err := h.queue.Status(c.Context(), token)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluation status", status)
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, worker.ErrBlankCode):
		return utils.SendError(c, fiber.StatusBadRequest, "code string cannot be blank")
	case errors.Is(err, service.ErrStepNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "code challenge not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
