package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nekogravitycat/room-booking-backend/internal/pkg/apperror"
)

// ErrorResponse defines the JSON structure for error responses.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Kind    apperror.Kind `json:"kind,omitempty"`
	Details any           `json:"details,omitempty"`
}

// Error sends a JSON error response.
// It checks if the error is an AppError to determine the status code.
// If it's not an AppError, it defaults to 500 Internal Server Error.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.Code, ErrorResponse{
			Error:   appErr.Message,
			Kind:    appErr.Kind,
			Details: appErr.Details,
		})
		return
	}

	slog.ErrorContext(c.Request.Context(), "unhandled request error",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: "internal server error",
		Kind:  apperror.KindInternal,
	})
}

// BadRequest sends a 400 response for malformed input that never reached a service.
func BadRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: apperror.KindValidation}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
