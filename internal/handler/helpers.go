package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/service"
)

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		field := fieldErr.Field()
		if field == "" {
			field = "conversationId"
		}
		details[lowerFirst(field)] = fieldErr.Tag()
	}
	return details
}

func lowerFirst(value string) string {
	if value == "" {
		return value
	}
	return strings.ToLower(value[:1]) + value[1:]
}

// errorStatus maps chat errors onto HTTP status codes and client messages.
func errorStatus(err error) (int, string) {
	switch {
	case isValidationError(err):
		return fiber.StatusBadRequest, "invalid request"
	case errors.Is(err, service.ErrContentRejected):
		return fiber.StatusUnprocessableEntity, "message content rejected"
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "conversation not found"
	case errors.Is(err, service.ErrDeliveryFailed):
		return fiber.StatusBadGateway, "message could not be delivered"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fiber.StatusRequestTimeout, "request cancelled"
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}
