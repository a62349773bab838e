package response

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/pkg/database"
	appErrors "github.com/edushare/course-api/pkg/errors"
)

// Envelope is the common response contract. Error detail is only populated
// when the process runs in a development configuration.
type Envelope struct {
	Success         bool               `json:"success"`
	Message         string             `json:"message,omitempty"`
	Data            interface{}        `json:"data,omitempty"`
	Pagination      *models.Pagination `json:"pagination,omitempty"`
	Enrolled        *bool              `json:"enrolled,omitempty"`
	AlreadyEnrolled *bool              `json:"alreadyEnrolled,omitempty"`
	Error           string             `json:"error,omitempty"`
}

var exposeDetail atomic.Bool

// ExposeErrorDetail toggles inclusion of raw error detail in error
// envelopes. Enabled for development environments only.
func ExposeErrorDetail(enabled bool) {
	exposeDetail.Store(enabled)
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, message string, data interface{}, pagination *models.Pagination) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, Envelope{Success: true, Message: message, Data: data, Pagination: pagination})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, message string, data interface{}) {
	JSON(c, http.StatusCreated, message, data, nil)
}

// Custom sends a caller-built envelope, forcing Success to true. Used by
// handlers that carry extra top-level flags such as alreadyEnrolled.
func Custom(c *gin.Context, status int, envelope Envelope) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	envelope.Success = true
	c.JSON(status, envelope)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if database.IsUnavailable(appErr.Err) {
		appErr = appErrors.Wrap(appErr.Err, appErrors.ErrStorageUnavailable.Code,
			appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	envelope := Envelope{Success: false, Message: appErr.Message}
	if exposeDetail.Load() && appErr.Err != nil {
		envelope.Error = appErr.Err.Error()
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, envelope)
}
