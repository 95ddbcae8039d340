package models

import (
	"errors"
	"fmt"

	"threads/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Error codes used across the data-access layer.
const (
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeStoreError       = "STORE_ERROR"
)

// ErrorResponse represents a standardized API error response. The correlation
// id lets a caller quote the exact request when reporting a failure.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	Details       string `json:"details,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors

// NewStoreUnavailableError signals that the store connection could not be established.
func NewStoreUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "Document store unavailable",
		Err:     err,
	}
}

// NewNotFoundError signals that a referenced record does not exist.
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

// NewValidationError signals a missing or malformed required field.
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewStoreError wraps an underlying store failure with an operation-specific message.
func NewStoreError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeStoreError,
		Message: message,
		Err:     err,
	}
}

// WrapOp attaches an operation prefix to store-level failures while letting
// already-classified errors (not-found, validation, store-unavailable) pass
// through unchanged. Every operation re-raises; none swallows.
func WrapOp(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeNotFound, CodeValidation, CodeStoreUnavailable:
			return err
		}
	}
	return NewStoreError(prefix, err)
}

// IsNotFound reports whether err is a NOT_FOUND application error.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == CodeNotFound
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, err error) error {
	correlationID := observability.ExtractCorrelationID(c.UserContext())

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:         err.Error(),
			CorrelationID: correlationID,
		})
	}

	response := ErrorResponse{
		Error:         appErr.Message,
		Code:          appErr.Code,
		CorrelationID: correlationID,
	}
	if appErr.Err != nil {
		response.Details = appErr.Err.Error()
	}

	status := fiber.StatusInternalServerError
	switch appErr.Code {
	case CodeNotFound:
		status = fiber.StatusNotFound
	case CodeValidation:
		status = fiber.StatusBadRequest
	case CodeStoreUnavailable:
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(response)
}
