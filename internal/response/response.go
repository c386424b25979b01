// Package response writes the JSON envelopes shared by every /api endpoint.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse wraps a successful payload.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError describes a failed request. Message is meant for operators;
// Error carries the underlying cause.
type APIError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

func requestPath(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

// OK sends 200 with data.
func OK(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, APIResponse{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    requestPath(c),
	})
}

// Error sends status with an APIError body.
func Error(c echo.Context, status int, message, cause string) error {
	return c.JSON(status, APIError{
		Message: message,
		Error:   cause,
		Path:    requestPath(c),
		Status:  status,
	})
}

func BadRequest(c echo.Context, message, cause string) error {
	return Error(c, http.StatusBadRequest, message, cause)
}

func NotFound(c echo.Context, message, cause string) error {
	return Error(c, http.StatusNotFound, message, cause)
}

// InternalError is also used by isalive to report an unhealthy job.
func InternalError(c echo.Context, message, cause string) error {
	return Error(c, http.StatusInternalServerError, message, cause)
}
