package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codeway-learn/codeway-api/internal/service"
	"github.com/codeway-learn/codeway-api/internal/utils"
)

// LanguageHandler serves the programming language catalog.
type LanguageHandler struct {
	service service.LanguageService
	logger  zerolog.Logger
}

// NewLanguageHandler builds a language handler instance.
func NewLanguageHandler(service service.LanguageService, logger zerolog.Logger) *LanguageHandler {
	return &LanguageHandler{
		service: service,
		logger:  logger.With().Str("component", "language_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *LanguageHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *LanguageHandler) list(c *fiber.Ctx) error {
	languages, err := h.service.List(c.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoLanguages) {
			return utils.SendError(c, fiber.StatusServiceUnavailable, "language catalog not populated")
		}
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "languages retrieved", languages)
}
