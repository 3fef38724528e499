package utils

import (
	"net/http"
	"time"

	"helpnet/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Success responses
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *models.MetaData) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now(),
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// Error responses
func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Message: message,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

func ValidationErrorResponse(c *gin.Context, validationErrors []ValidationError) {
	ErrorResponse(c, http.StatusBadRequest, ErrCodeValidation, "Validation failed", validationErrors)
}

// HandleServiceError maps a service error onto the HTTP response. Unexpected
// internal faults are logged and surfaced as a generic failure without
// leaking internals.
func HandleServiceError(c *gin.Context, err error) {
	if serviceErr, ok := GetServiceError(err); ok {
		statusCode := serviceErr.StatusCode
		if statusCode == 0 {
			statusCode = http.StatusInternalServerError
		}
		if statusCode >= http.StatusInternalServerError {
			logrus.Errorf("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			ErrorResponse(c, statusCode, ErrCodeInternal, "Something went wrong", nil)
			return
		}
		ErrorResponse(c, statusCode, serviceErr.Code, serviceErr.Message, serviceErr.Details)
		return
	}

	logrus.Errorf("Unexpected error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	ErrorResponse(c, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong", nil)
}
