package handlers

import (
	"github.com/gin-gonic/gin"

	"telemetry-pipeline/internal/models"
)

// RespondWithError sends a standardized JSON error response. status is the
// body's "status" field, usually "error".
func RespondWithError(c *gin.Context, httpStatus int, status, appErrorCode, message string, details interface{}) {
	c.JSON(httpStatus, models.APIError{
		Status:  status,
		Code:    appErrorCode,
		Message: message,
		Details: details,
	})
}

// RespondWithSuccess sends data as JSON, or no body when data is nil.
func RespondWithSuccess(c *gin.Context, httpStatus int, data interface{}) {
	if data != nil {
		c.JSON(httpStatus, data)
	} else {
		c.Status(httpStatus)
	}
}
