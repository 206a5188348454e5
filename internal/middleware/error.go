package middleware

import (
	"errors"
	"net/http"

	"exam-engine/internal/domain"
	"exam-engine/internal/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler is a centralized error handling middleware
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		log := logger.Get()

		// Handle validation errors
		var validationErrs domain.ValidationErrors
		if errors.As(err, &validationErrs) {
			log.Warn("Validation errors occurred",
				zap.String("path", c.Path()),
				zap.Int("error_count", len(validationErrs)),
			)
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Code:    string(domain.ErrValidation),
				Message: "Request validation failed",
				Status:  http.StatusBadRequest,
				Details: map[string]interface{}{"errors": []domain.ValidationError(validationErrs)},
			})
		}

		// Handle domain errors
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			statusCode := mapDomainErrorToHTTPStatus(domainErr)

			fields := []zap.Field{
				zap.String("path", c.Path()),
				zap.String("code", string(domainErr.Code)),
				zap.Int("status", statusCode),
			}
			if domainErr.Err != nil {
				fields = append(fields, zap.Error(domainErr.Err))
			}
			if statusCode >= http.StatusInternalServerError {
				log.Error(domainErr.Message, fields...)
			} else {
				log.Info(domainErr.Message, fields...)
			}

			response := ErrorResponse{
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Status:  statusCode,
			}
			if len(domainErr.Context) > 0 {
				response.Details = domainErr.Context
			}
			return c.Status(statusCode).JSON(response)
		}

		// Handle fiber errors
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			log.Warn("Fiber error occurred",
				zap.Int("code", fiberErr.Code),
				zap.String("message", fiberErr.Message),
			)
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Code:    "HTTP_ERROR",
				Message: fiberErr.Message,
				Status:  fiberErr.Code,
			})
		}

		// Handle unknown errors
		log.Error("Unknown error occurred",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Code:    string(domain.ErrInternal),
			Message: "Internal server error",
			Status:  http.StatusInternalServerError,
		})
	}
}

// mapDomainErrorToHTTPStatus maps domain errors to HTTP status codes
func mapDomainErrorToHTTPStatus(err *domain.DomainError) int {
	switch err.Code {
	case domain.ErrNotFound, domain.ErrExamNotFound, domain.ErrSectionNotFound, domain.ErrAttemptNotFound:
		return http.StatusNotFound
	case domain.ErrDuplicateExamCode, domain.ErrAttemptSubmitted, domain.ErrSectionLocked,
		domain.ErrAttemptIncomplete, domain.ErrConcurrentUpdate:
		return http.StatusConflict
	case domain.ErrInvalidInput, domain.ErrValidation, domain.ErrSectionNotInExam,
		domain.ErrEmptyAnswers, domain.ErrExamNotPublished:
		return http.StatusBadRequest
	case domain.ErrNotAttemptOwner:
		return http.StatusForbidden
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrGradingService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
