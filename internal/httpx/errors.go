package httpx

import (
	"errors"

	"bizledger-backend/internal/apperr"
	"bizledger-backend/internal/ledger"

	"github.com/gofiber/fiber/v2"
)

// Error translates a service error into a response. Validation failures
// are written as 422 with per-field messages; everything else becomes a
// *fiber.Error for the app's ErrorHandler.
func Error(c *fiber.Ctx, err error, fallback string) error {
	var verrs ledger.ValidationErrors
	if errors.As(err, &verrs) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": verrs,
		})
	}
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": ledger.ValidationErrors{verr},
		})
	}

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}

// ParamID parses a positive numeric path parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}
