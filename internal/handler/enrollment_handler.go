package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/internal/service"
	appErrors "github.com/edushare/course-api/pkg/errors"
	"github.com/edushare/course-api/pkg/response"
)

// EnrollmentHandler exposes enrollment and progress endpoints.
type EnrollmentHandler struct {
	enrollments     *service.EnrollmentService
	responseTimeout time.Duration
	logger          *zap.Logger
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, responseTimeout time.Duration, logger *zap.Logger) *EnrollmentHandler {
	if responseTimeout <= 0 {
		responseTimeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentHandler{enrollments: enrollments, responseTimeout: responseTimeout, logger: logger}
}

type enrollRequest struct {
	UserID string `json:"user_id"`
}

// Enroll godoc
// @Summary Enroll a user in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course reference"
// @Param payload body enrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, alreadyEnrolled, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	message := "enrolled successfully"
	if alreadyEnrolled {
		status = http.StatusOK
		message = "already enrolled in this course"
	}
	response.Custom(c, status, response.Envelope{
		Message:         message,
		Data:            enrollment,
		AlreadyEnrolled: &alreadyEnrolled,
	})
}

// GetEnrollment godoc
// @Summary Get enrollment status and progress for a user
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course reference"
// @Param user_id query string true "User id"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollment [get]
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	enrollment, err := h.enrollments.GetEnrollment(c.Request.Context(), c.Param("id"), c.Query("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	enrolled := enrollment != nil
	message := "enrollment retrieved"
	if !enrolled {
		message = "not enrolled in this course"
	}
	envelope := response.Envelope{Message: message, Enrolled: &enrolled}
	if enrolled {
		envelope.Data = enrollment
	}
	response.Custom(c, http.StatusOK, envelope)
}

// MyEnrollments godoc
// @Summary List a user's enrollments with their courses
// @Tags Enrollments
// @Produce json
// @Param userId path string true "User id"
// @Success 200 {object} response.Envelope
// @Router /courses/my-enrollments/{userId} [get]
func (h *EnrollmentHandler) MyEnrollments(c *gin.Context) {
	enrollments, err := h.enrollments.ListUserEnrollments(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "enrollments retrieved", enrollments, nil)
}

// UpdateProgress godoc
// @Summary Mark a lesson complete and recompute progress
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course reference"
// @Param payload body service.UpdateProgressRequest true "Progress payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/progress [put]
func (h *EnrollmentHandler) UpdateProgress(c *gin.Context) {
	var req service.UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	// The write runs on a detached context so a slow or aborted client
	// cannot cancel it mid-flight; the handler only bounds how long the
	// client waits for the response.
	type result struct {
		enrollment *models.Enrollment
		err        error
	}
	courseRef := c.Param("id")
	done := make(chan result, 1)
	go func() {
		enrollment, err := h.enrollments.UpdateProgress(context.WithoutCancel(c.Request.Context()), courseRef, req)
		done <- result{enrollment, err}
	}()

	timer := time.NewTimer(h.responseTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			response.Error(c, res.err)
			return
		}
		response.JSON(c, http.StatusOK, "progress updated", res.enrollment, nil)
	case <-timer.C:
		h.logger.Warn("progress update response timed out, write continues in background",
			zap.String("course_ref", courseRef),
			zap.String("user_id", req.UserID),
			zap.String("lesson_id", req.LessonID))
		response.Error(c, appErrors.ErrGatewayTimeout)
	}
}
