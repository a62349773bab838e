package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/internal/service"
	appErrors "github.com/edushare/course-api/pkg/errors"
	"github.com/edushare/course-api/pkg/response"
)

// CourseHandler exposes catalog endpoints.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List published courses
// @Tags Courses
// @Produce json
// @Param q query string false "Search query"
// @Param category query string false "Filter by category"
// @Param level query string false "Filter by level"
// @Param free query bool false "Filter free courses"
// @Param sort query string false "Sort order (popular, rating, title)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, pagination, err := h.courses.List(c.Request.Context(), parseCourseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "courses retrieved", courses, pagination)
}

// Search godoc
// @Summary Search courses by text
// @Tags Courses
// @Produce json
// @Param q query string true "Search query"
// @Param category query string false "Filter by category"
// @Param level query string false "Filter by level"
// @Param free query bool false "Filter free courses"
// @Param sort query string false "Sort order (popular, rating, title)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses/search [get]
func (h *CourseHandler) Search(c *gin.Context) {
	filter := parseCourseFilter(c)
	if filter.Query == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "search query is required"))
		return
	}

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "search results retrieved", courses, pagination)
}

func parseCourseFilter(c *gin.Context) models.CourseFilter {
	var filter models.CourseFilter
	filter.Query = c.Query("q")
	filter.Category = c.Query("category")
	filter.Level = c.Query("level")
	filter.SortBy = c.Query("sort")
	if free := c.Query("free"); free != "" {
		if parsed, err := strconv.ParseBool(free); err == nil {
			filter.IsFree = &parsed
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}

// Get godoc
// @Summary Get a course by id or business id
// @Tags Courses
// @Produce json
// @Param id path string true "Course reference"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "course retrieved", course, nil)
}

// Create godoc
// @Summary Create a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleInstructor {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "instructor role required"))
		return
	}

	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Instructor.ID == "" {
		req.Instructor = models.Instructor{ID: claims.UserID, Name: claims.FullName}
	}

	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "course created", course)
}
