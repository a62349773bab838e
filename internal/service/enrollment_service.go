package service

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/internal/repository"
	"github.com/edushare/course-api/pkg/database"
	appErrors "github.com/edushare/course-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Update(ctx context.Context, enrollment *models.Enrollment) error
}

type courseResolver interface {
	ResolveCourseRef(ctx context.Context, ref string) (*models.Course, error)
}

type courseCounter interface {
	IncrementEnrolledCount(ctx context.Context, courseID string) (int64, error)
	IncrementEnrolledCountByInternalID(ctx context.Context, id string) (int64, error)
}

// EnrollmentWithCourse pairs an enrollment with its resolved course for
// listing responses. Course is nil when the catalog entry has vanished.
type EnrollmentWithCourse struct {
	models.Enrollment
	Course *models.Course `json:"course,omitempty"`
}

// UpdateProgressRequest is the lesson-completion payload.
type UpdateProgressRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	LessonID string `json:"lesson_id" validate:"required"`
	ModuleID string `json:"module_id"`
}

// EnrollmentService guarantees that a user is enrolled in a course if and
// only if the course is free or a completed payment exists for the pair,
// with no duplicate enrollments.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseResolver
	counter   courseCounter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseResolver, counter courseCounter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, counter: counter, metrics: metrics, validator: validate, logger: logger}
}

// Enroll registers a user on a course. The call is idempotent: a second
// enrollment attempt for the same pair returns the existing record and
// reports alreadyEnrolled true. Duplicate suppression ultimately rests on
// the storage uniqueness constraint, not the read-before-write check.
func (s *EnrollmentService) Enroll(ctx context.Context, courseRef, userID string) (*models.Enrollment, bool, error) {
	if userID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "user_id is required")
	}
	course, err := s.courses.ResolveCourseRef(ctx, courseRef)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByUserAndCourse(ctx, userID, course.CourseID)
	if err == nil {
		return existing, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	enrollment := &models.Enrollment{
		UserID:     userID,
		CourseID:   course.CourseID,
		EnrolledAt: time.Now().UTC(),
		Status:     models.EnrollmentStatusActive,
		Progress:   models.Progress{CompletedLessons: []models.CompletedLesson{}},
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err, repository.UniqueEnrollmentConstraint) {
			// Lost the race to a concurrent enroll; the winner's row is
			// authoritative and the counter was already incremented once.
			existing, findErr := s.repo.FindByUserAndCourse(ctx, userID, course.CourseID)
			if findErr != nil {
				return nil, false, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
			}
			return existing, true, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if affected, err := s.counter.IncrementEnrolledCount(ctx, course.CourseID); err != nil {
		s.logger.Warn("increment enrolled count", zap.String("course_id", course.CourseID), zap.Error(err))
	} else if affected == 0 {
		s.logger.Warn("enrolled count not incremented, course missing", zap.String("course_id", course.CourseID))
	}
	s.metrics.RecordEnrollmentCreated()
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", userID),
		zap.String("course_id", course.CourseID))
	return enrollment, false, nil
}

// GetEnrollment returns the enrollment snapshot for a pair, or nil when
// the user is not enrolled.
func (s *EnrollmentService) GetEnrollment(ctx context.Context, courseRef, userID string) (*models.Enrollment, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user_id is required")
	}
	course, err := s.courses.ResolveCourseRef(ctx, courseRef)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByUserAndCourse(ctx, userID, course.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// ListUserEnrollments returns a user's enrollments enriched with their
// courses. Course lookups are read-only and mutually independent, so they
// run concurrently.
func (s *EnrollmentService) ListUserEnrollments(ctx context.Context, userID string) ([]EnrollmentWithCourse, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user_id is required")
	}
	enrollments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	result := make([]EnrollmentWithCourse, len(enrollments))
	var wg sync.WaitGroup
	for i := range enrollments {
		result[i].Enrollment = enrollments[i]
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			course, err := s.courses.ResolveCourseRef(ctx, enrollments[i].CourseID)
			if err != nil {
				s.logger.Warn("course lookup for enrollment failed",
					zap.String("course_id", enrollments[i].CourseID), zap.Error(err))
				return
			}
			result[i].Course = course
		}(i)
	}
	wg.Wait()
	return result, nil
}

// UpdateProgress marks a lesson complete and recomputes completion. The
// enrollment is created on the fly when absent, so progress updates heal
// missing enrollment records. All mutations happen in memory first and are
// persisted with a single write.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, courseRef string, req UpdateProgressRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "user_id and lesson_id are required")
	}
	course, err := s.courses.ResolveCourseRef(ctx, courseRef)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.repo.FindByUserAndCourse(ctx, req.UserID, course.CourseID)
	created := false
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		enrollment = &models.Enrollment{
			UserID:     req.UserID,
			CourseID:   course.CourseID,
			EnrolledAt: time.Now().UTC(),
			Status:     models.EnrollmentStatusActive,
			Progress:   models.Progress{CompletedLessons: []models.CompletedLesson{}},
		}
		created = true
	}

	enrollment.Progress.MarkLesson(req.LessonID, time.Now().UTC())
	if req.ModuleID != "" {
		enrollment.Progress.LastAccessedLesson = &models.LastAccessedLesson{
			LessonID: req.LessonID,
			ModuleID: req.ModuleID,
		}
	}

	enrollment.Progress.CompletionPercentage = completionPercentage(
		len(enrollment.Progress.CompletedLessons), course.Modules.TotalLessons())
	if enrollment.Progress.CompletionPercentage >= 100 && enrollment.Status == models.EnrollmentStatusActive {
		enrollment.Status = models.EnrollmentStatusCompleted
	}

	if created {
		if err := s.repo.Create(ctx, enrollment); err != nil {
			if database.IsUniqueViolation(err, repository.UniqueEnrollmentConstraint) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed concurrently, retry")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		return enrollment, nil
	}
	if err := s.repo.Update(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}
	return enrollment, nil
}

// completionPercentage rounds 100*completed/total; a course with no
// lessons yields 0, never a division error.
func completionPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
