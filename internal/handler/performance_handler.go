package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/service"
	"github.com/codeway-learn/codeway-api/internal/utils"
)

// PerformanceHandler serves assessment step statistics for instructors.
type PerformanceHandler struct {
	service service.PerformanceService
	logger  zerolog.Logger
}

// NewPerformanceHandler builds a performance handler instance.
func NewPerformanceHandler(service service.PerformanceService, logger zerolog.Logger) *PerformanceHandler {
	return &PerformanceHandler{
		service: service,
		logger:  logger.With().Str("component", "performance_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *PerformanceHandler) Register(router fiber.Router) {
	router.Get("/:id/stats", h.stats)
}

func (h *PerformanceHandler) stats(c *fiber.Ctx) error {
	stepID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.service.StatsForStep(c.Context(), stepID)
	if err != nil {
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "assessment step statistics", stats)
}
