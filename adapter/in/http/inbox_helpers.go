// Package http implements the inbound REST adapters.
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/response"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetUserID safely extracts user_id from fiber context.
// Returns error if not authenticated.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDVal := c.Locals("user_id")
	if userIDVal == nil {
		return uuid.Nil, ErrUnauthorized
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	return userID, nil
}

// AppErrorResponse maps an application error onto the response envelope.
// Internal errors are logged in full but never leak details to clients.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	appErr := apperr.AsAppError(err)
	if appErr.Status >= 500 {
		logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		return response.Error(c, appErr.Status, appErr.Code, "internal error")
	}
	return response.Error(c, appErr.Status, appErr.Code, appErr.Message)
}

// ParseIDParam parses a uuid path parameter.
func ParseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid " + name)
	}
	return id, nil
}
