package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error payload of every non-2xx response. Browser clients
// of the broadcast API only read the error field.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_FAILED"
	CodeNoActiveBroadcast   = "NO_ACTIVE_BROADCAST"
	CodeBroadcastInProgress = "BROADCAST_IN_PROGRESS"
	CodeBackend             = "BACKEND_REQUEST_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Success writes data as the bare JSON body with status 200.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error sends an error response.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{
		Error: message,
		Code:  code,
	})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, code, message string) {
	Error(c, http.StatusConflict, code, message)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, code, message string) {
	Error(c, http.StatusInternalServerError, code, message)
}
