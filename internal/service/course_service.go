package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edushare/course-api/internal/models"
	appErrors "github.com/edushare/course-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCourseID(ctx context.Context, courseID string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
}

// CreateLessonRequest describes a lesson within a module payload.
type CreateLessonRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Duration    int    `json:"duration" validate:"gte=0"`
	Content     string `json:"content"`
	VideoURL    string `json:"videoUrl"`
	IsPreview   bool   `json:"isPreview"`
}

// CreateModuleRequest describes a module within a course payload.
type CreateModuleRequest struct {
	Title       string                `json:"title" validate:"required"`
	Description string                `json:"description"`
	Lessons     []CreateLessonRequest `json:"lessons" validate:"dive"`
}

// CreateCourseRequest describes course creation input.
type CreateCourseRequest struct {
	Title       string                `json:"title" validate:"required"`
	Subtitle    string                `json:"subtitle"`
	Description string                `json:"description" validate:"required"`
	Category    string                `json:"category" validate:"required"`
	Level       string                `json:"level" validate:"required,oneof=beginner intermediate advanced"`
	Instructor  models.Instructor     `json:"instructor"`
	Modules     []CreateModuleRequest `json:"modules" validate:"dive"`
	Pricing     models.Pricing        `json:"pricing"`
	Tags        []string              `json:"tags"`
	Languages   []string              `json:"languages"`
	Status      string                `json:"status" validate:"omitempty,oneof=draft published"`
	Visibility  string                `json:"visibility" validate:"omitempty,oneof=public private"`
}

// CourseService orchestrates catalog reads and course creation.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, validator: validate, logger: logger}
}

type cachedCourseList struct {
	Courses []models.Course `json:"courses"`
	Total   int             `json:"total"`
}

// List returns published courses with pagination metadata. Results are
// cached per filter combination.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	cacheKey := makeCourseListCacheKey(filter)
	var cached cachedCourseList
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached.Courses, buildPagination(filter.Page, filter.PageSize, cached.Total), nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if err := s.cache.Set(ctx, cacheKey, cachedCourseList{Courses: courses, Total: total}, 0); err != nil {
		s.logger.Warn("cache course list", zap.Error(err))
	}
	return courses, buildPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single course resolved by either identifier.
func (s *CourseService) Get(ctx context.Context, ref string) (*models.Course, error) {
	return s.ResolveCourseRef(ctx, ref)
}

// ResolveCourseRef resolves a course by either of its identifiers: the
// storage-internal id is probed first, then the business course_id. The
// probe order is fixed; enrollment-after-payment matching uses the
// opposite order and the two must not drift (see EnrollmentService).
func (s *CourseService) ResolveCourseRef(ctx context.Context, ref string) (*models.Course, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course reference is required")
	}

	course, err := s.repo.FindByID(ctx, ref)
	if err == nil {
		return course, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	course, err = s.repo.FindByCourseID(ctx, ref)
	if err == nil {
		return course, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
}

// Create validates and persists a new course. Module and lesson
// identifiers are minted here; duration and lesson counters are derived
// from the submitted content.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	modules := make(models.ModuleList, 0, len(req.Modules))
	totalMinutes := 0
	lessonCount := 0
	for mi, moduleReq := range req.Modules {
		module := models.Module{
			ModuleID:    "module_" + uuid.NewString(),
			Title:       moduleReq.Title,
			Description: moduleReq.Description,
			Order:       mi + 1,
			Lessons:     make([]models.Lesson, 0, len(moduleReq.Lessons)),
		}
		for li, lessonReq := range moduleReq.Lessons {
			module.Lessons = append(module.Lessons, models.Lesson{
				LessonID:    "lesson_" + uuid.NewString(),
				Title:       lessonReq.Title,
				Description: lessonReq.Description,
				Duration:    lessonReq.Duration,
				Content:     lessonReq.Content,
				VideoURL:    lessonReq.VideoURL,
				IsPreview:   lessonReq.IsPreview,
				Order:       li + 1,
			})
			totalMinutes += lessonReq.Duration
			lessonCount++
		}
		modules = append(modules, module)
	}

	status := req.Status
	if status == "" {
		status = models.CourseStatusPublished
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.CourseVisibilityPublic
	}
	pricing := req.Pricing
	if pricing.Currency == "" {
		pricing.Currency = "VND"
	}

	course := &models.Course{
		Title:         req.Title,
		Subtitle:      req.Subtitle,
		Description:   req.Description,
		Instructor:    req.Instructor,
		Category:      req.Category,
		Level:         req.Level,
		Modules:       modules,
		Pricing:       pricing,
		DurationHours: (totalMinutes + 59) / 60,
		LessonsCount:  lessonCount,
		Tags:          models.StringList(req.Tags),
		Languages:     models.StringList(req.Languages),
		Status:        status,
		Visibility:    visibility,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	if err := s.cache.Invalidate(ctx, "courses:list:*"); err != nil {
		s.logger.Warn("invalidate course cache", zap.Error(err))
	}
	s.logger.Info("course created", zap.String("course_id", course.CourseID), zap.String("title", course.Title))
	return course, nil
}

func makeCourseListCacheKey(filter models.CourseFilter) string {
	free := ""
	if filter.IsFree != nil {
		free = fmt.Sprintf("%t", *filter.IsFree)
	}
	return fmt.Sprintf("courses:list:%s:%s:%s:%s:%s:%d:%d",
		filter.Query, filter.Category, filter.Level, free, filter.SortBy, filter.Page, filter.PageSize)
}

func buildPagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	pages := 0
	if total > 0 {
		pages = (total + size - 1) / size
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: pages}
}
