package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edushare/course-api/internal/models"
	appErrors "github.com/edushare/course-api/pkg/errors"
)

type mockCourseRepo struct {
	byID        map[string]*models.Course
	byCourseID  map[string]*models.Course
	listResult  []models.Course
	listTotal   int
	listErr     error
	created     []*models.Course
	createErr   error
	findByIDLog []string
	findByBizLog []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	return m.listResult, m.listTotal, m.listErr
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	m.findByIDLog = append(m.findByIDLog, id)
	if c, ok := m.byID[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) FindByCourseID(ctx context.Context, courseID string) (*models.Course, error) {
	m.findByBizLog = append(m.findByBizLog, courseID)
	if c, ok := m.byCourseID[courseID]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.createErr != nil {
		return m.createErr
	}
	course.ID = "internal-1"
	course.CourseID = "course_new"
	m.created = append(m.created, course)
	return nil
}

func TestResolveCourseRefPrefersInternalID(t *testing.T) {
	// The same reference exists under both keys; the internal id probe
	// must win and the business-id probe must never run.
	internal := &models.Course{ID: "64a1b2c3d4e5f60718293a4b", CourseID: "course_x", Title: "internal"}
	shadow := &models.Course{ID: "other", CourseID: "64a1b2c3d4e5f60718293a4b", Title: "shadow"}
	repo := &mockCourseRepo{
		byID:       map[string]*models.Course{"64a1b2c3d4e5f60718293a4b": internal},
		byCourseID: map[string]*models.Course{"64a1b2c3d4e5f60718293a4b": shadow},
	}
	svc := NewCourseService(repo, nil, nil, nil)

	course, err := svc.ResolveCourseRef(context.Background(), "64a1b2c3d4e5f60718293a4b")
	require.NoError(t, err)
	assert.Equal(t, "internal", course.Title)
	assert.Empty(t, repo.findByBizLog)
}

func TestResolveCourseRefFallsBackToBusinessID(t *testing.T) {
	course := &models.Course{ID: "internal-1", CourseID: "course_abc"}
	repo := &mockCourseRepo{byCourseID: map[string]*models.Course{"course_abc": course}}
	svc := NewCourseService(repo, nil, nil, nil)

	resolved, err := svc.ResolveCourseRef(context.Background(), "course_abc")
	require.NoError(t, err)
	assert.Equal(t, "course_abc", resolved.CourseID)
	assert.Equal(t, []string{"course_abc"}, repo.findByIDLog)
	assert.Equal(t, []string{"course_abc"}, repo.findByBizLog)
}

func TestResolveCourseRefNotFound(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil, nil)

	_, err := svc.ResolveCourseRef(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCreateCourseComputesContentCounters(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, nil, nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Title:       "Intro to Go",
		Description: "learn go",
		Category:    "programming",
		Level:       "beginner",
		Modules: []CreateModuleRequest{
			{Title: "Basics", Lessons: []CreateLessonRequest{
				{Title: "Hello", Duration: 30},
				{Title: "Types", Duration: 45},
			}},
			{Title: "Concurrency", Lessons: []CreateLessonRequest{
				{Title: "Goroutines", Duration: 50},
			}},
		},
		Pricing: models.Pricing{IsFree: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, course.LessonsCount)
	assert.Equal(t, 3, course.Modules.TotalLessons())
	assert.Equal(t, 3, course.DurationHours) // 125 minutes rounded up
	assert.Equal(t, models.CourseStatusPublished, course.Status)
	for _, module := range course.Modules {
		assert.Contains(t, module.ModuleID, "module_")
		for _, lesson := range module.Lessons {
			assert.Contains(t, lesson.LessonID, "lesson_")
		}
	}
}

func TestCreateCourseRejectsInvalidLevel(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Title:       "x",
		Description: "y",
		Category:    "z",
		Level:       "expert",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestListCoursesWithoutCache(t *testing.T) {
	repo := &mockCourseRepo{
		listResult: []models.Course{{CourseID: "course_abc"}},
		listTotal:  41,
	}
	svc := NewCourseService(repo, nil, nil, nil)

	courses, pagination, err := svc.List(context.Background(), models.CourseFilter{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, courses, 1)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 41, pagination.TotalCount)
	assert.Equal(t, 3, pagination.TotalPages)
}
