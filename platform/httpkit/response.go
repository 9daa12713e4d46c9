package httpkit

import (
	"net/http"

	"bbys_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func JSON(c *gin.Context, status int, payload any) { c.JSON(status, payload) }

func OK(c *gin.Context, payload any) { c.JSON(http.StatusOK, payload) }

// Accepted answers 202 for work handed to the worker or the CRM merge.
func Accepted(c *gin.Context, payload any) { c.JSON(http.StatusAccepted, payload) }

func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError writes err and reports whether there was one. Typed
// application errors keep their status and message; anything else becomes a
// bare 500 and is attached to the context for the request logger.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := apperr.As(err); ok {
		Error(c, appErr.HTTPStatus(), appErr.Message, appErr.Details)
		return true
	}
	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, "internal error", nil)
	return true
}
