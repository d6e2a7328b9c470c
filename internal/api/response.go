package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response helpers for consistent API responses across the read-only
// surface. The proxy has no auth, mutation, or pagination, so the helper
// set is pared down to what the handlers actually use.

// ErrorResponse is the envelope returned on any non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RespondJSON sends a JSON response with the given status code and data.
func RespondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, errorType string, message string) {
	c.JSON(status, ErrorResponse{
		Error:   errorType,
		Message: message,
		Code:    status,
	})
}

// RespondInternalError sends a 500 Internal Server Error.
func RespondInternalError(c *gin.Context, message string) {
	if message == "" {
		message = "an internal error occurred"
	}
	RespondError(c, http.StatusInternalServerError, "internal_error", message)
}
