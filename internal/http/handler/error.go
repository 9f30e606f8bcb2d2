package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"docregistry/internal/http/middleware"
	"docregistry/internal/service"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
}

// indeterminateData tells the client which transaction may still land.
type indeterminateData struct {
	DocHash string `json:"docHash"`
	TxHash  string `json:"txHash"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(envelope{
		Success:   false,
		Error:     code,
		Message:   message,
		RequestID: requestIDFromCtx(c),
	})
}

// writeServiceError maps a service error onto status, machine code and a fixed message.
func writeServiceError(c *fiber.Ctx, err error) error {
	code := service.Code(err)
	switch code {
	case "INVALID_INPUT":
		return writeError(c, fiber.StatusBadRequest, code, invalidInputMessage(err))
	case "DUPLICATE":
		return writeError(c, fiber.StatusConflict, code, "document already registered")
	case "NOT_FOUND":
		return writeError(c, fiber.StatusNotFound, code, "document not found")
	case "STORAGE_FAILURE":
		return writeError(c, fiber.StatusInternalServerError, code, "failed to store document")
	case "REGISTRY_UNAVAILABLE":
		return writeError(c, fiber.StatusInternalServerError, code, "registry unavailable, retry later")
	case "REGISTRY_REJECTED":
		return writeError(c, fiber.StatusUnprocessableEntity, code, "registry rejected the registration")
	case "CONFIRMATION_INDETERMINATE":
		body := envelope{
			Success:   false,
			Error:     code,
			Message:   "registration submitted but not confirmed in time; it may still complete",
			RequestID: requestIDFromCtx(c),
		}
		var abort *service.AbortError
		if errors.As(err, &abort) {
			body.Data = indeterminateData{DocHash: abort.DocHash, TxHash: abort.TxHash}
		}
		return c.Status(fiber.StatusGatewayTimeout).JSON(body)
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// invalidInputMessage keeps the validation detail, which is written for
// clients, and drops the taxonomy prefix.
func invalidInputMessage(err error) string {
	var abort *service.AbortError
	if errors.As(err, &abort) && abort.Err != nil {
		err = abort.Err
	}
	msg := strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
	if msg == service.ErrInvalidInput.Error() {
		return "invalid request"
	}
	return msg
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			// Same code as an oversize file caught by the service.
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "file exceeds maximum upload size")
		default:
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
	}
}
