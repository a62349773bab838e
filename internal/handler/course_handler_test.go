package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edushare/course-api/internal/middleware"
	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/internal/service"
)

type fakeCourseRepo struct {
	courses    []models.Course
	lastFilter models.CourseFilter
	created    []*models.Course
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	f.lastFilter = filter
	return f.courses, len(f.courses), nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	for i := range f.courses {
		if f.courses[i].ID == id {
			return &f.courses[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) FindByCourseID(ctx context.Context, courseID string) (*models.Course, error) {
	for i := range f.courses {
		if f.courses[i].CourseID == courseID {
			return &f.courses[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	f.created = append(f.created, course)
	return nil
}

func newCourseHandler(repo *fakeCourseRepo) *CourseHandler {
	return NewCourseHandler(service.NewCourseService(repo, nil, nil, nil))
}

func TestListCoursesParsesFilters(t *testing.T) {
	repo := &fakeCourseRepo{courses: []models.Course{*testCourse()}}
	h := newCourseHandler(repo)

	rec := performJSON(t, h.List, http.MethodGet, "/courses?q=go&level=beginner&free=true&page=2&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "go", repo.lastFilter.Query)
	assert.Equal(t, "beginner", repo.lastFilter.Level)
	require.NotNil(t, repo.lastFilter.IsFree)
	assert.True(t, *repo.lastFilter.IsFree)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 10, repo.lastFilter.PageSize)
	assert.Contains(t, rec.Body.String(), `"pagination"`)
}

func TestSearchRequiresQuery(t *testing.T) {
	repo := &fakeCourseRepo{courses: []models.Course{*testCourse()}}
	h := newCourseHandler(repo)

	rec := performJSON(t, h.Search, http.MethodGet, "/courses/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = performJSON(t, h.Search, http.MethodGet, "/courses/search?q=backend", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "backend", repo.lastFilter.Query)
}

func TestGetCourseByEitherKey(t *testing.T) {
	repo := &fakeCourseRepo{courses: []models.Course{*testCourse()}}
	h := newCourseHandler(repo)

	for _, ref := range []string{"internal-1", "course_go101"} {
		rec := performJSON(t, h.Get, http.MethodGet, "/courses/"+ref, "",
			gin.Params{{Key: "id", Value: ref}})
		require.Equal(t, http.StatusOK, rec.Code, ref)
		assert.Contains(t, rec.Body.String(), "Go for Backend Engineers")
	}
}

func TestGetCourseNotFound(t *testing.T) {
	h := newCourseHandler(&fakeCourseRepo{})

	rec := performJSON(t, h.Get, http.MethodGet, "/courses/nope", "",
		gin.Params{{Key: "id", Value: "nope"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func createCourseContext(t *testing.T, role models.UserRole, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/courses", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role, FullName: "Admin"})
	return c, rec
}

func TestCreateCourseRequiresInstructorRole(t *testing.T) {
	h := newCourseHandler(&fakeCourseRepo{})

	c, rec := createCourseContext(t, models.RoleStudent, `{}`)
	h.Create(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateCourseSucceedsForInstructor(t *testing.T) {
	repo := &fakeCourseRepo{}
	h := newCourseHandler(repo)

	payload := `{
		"title": "Distributed Systems",
		"description": "Consensus and replication",
		"category": "engineering",
		"level": "advanced",
		"modules": [{"title": "Basics", "lessons": [{"title": "Intro", "duration": 30}]}],
		"pricing": {"isFree": true, "currency": "VND"}
	}`
	c, rec := createCourseContext(t, models.RoleInstructor, payload)
	h.Create(c)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, 1, repo.created[0].LessonsCount)
}
