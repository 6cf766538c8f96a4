package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/services"
	"github.com/shareplane/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// serviceError maps the typed service errors onto HTTP statuses.
// Conflicting state is 409, unknown resources are 404 and bad input is
// 400; anything untyped stays a 500.
func serviceError(c *fiber.Ctx, err error) error {
	var (
		invalidInput    *services.InvalidInputError
		invalidGroup    *services.InvalidShareGroupError
		invalidSnapshot *services.InvalidGroupSnapshotError
		invalidType     *services.InvalidShareGroupTypeError
		invalidSpec     *services.InvalidExtraSpecError
		notFound        *services.NotFoundError
		createFailed    *services.GroupTypeCreateFailedError
		inUse           *services.GroupTypeInUseError
		accessExists    *services.GroupTypeAccessExistsError
		accessMissing   *services.GroupTypeAccessNotFoundError
	)

	switch {
	case errors.As(err, &invalidInput):
		return utils.Error(c, fiber.StatusBadRequest, invalidInput.Error())
	case errors.As(err, &invalidGroup):
		return utils.Error(c, fiber.StatusConflict, invalidGroup.Error())
	case errors.As(err, &invalidSnapshot):
		return utils.Error(c, fiber.StatusConflict, invalidSnapshot.Error())
	case errors.As(err, &invalidType):
		return utils.Error(c, fiber.StatusBadRequest, invalidType.Error())
	case errors.As(err, &invalidSpec):
		return utils.Error(c, fiber.StatusBadRequest, invalidSpec.Error())
	case errors.As(err, &notFound):
		return utils.Error(c, fiber.StatusNotFound, notFound.Error())
	case errors.As(err, &createFailed):
		return utils.Error(c, fiber.StatusConflict, createFailed.Error())
	case errors.As(err, &inUse):
		return utils.Error(c, fiber.StatusConflict, inUse.Error())
	case errors.As(err, &accessExists):
		return utils.Error(c, fiber.StatusConflict, accessExists.Error())
	case errors.As(err, &accessMissing):
		return utils.Error(c, fiber.StatusNotFound, accessMissing.Error())
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "internal error")
	}
}
