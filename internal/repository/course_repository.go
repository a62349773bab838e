package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edushare/course-api/internal/models"
)

const courseColumns = `id, course_id, title, subtitle, description, thumbnail, instructor, category, level,
        modules, pricing, duration_hours, lessons_count, enrolled_count, rating, rating_count, review_count,
        tags, languages, status, visibility, created_at, updated_at`

// CourseRepository handles persistence of catalog courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns published courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	status := filter.Status
	if status == "" {
		status = models.CourseStatusPublished
	}
	conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
	args = append(args, status)

	visibility := filter.Visibility
	if visibility == "" {
		visibility = models.CourseVisibilityPublic
	}
	conditions = append(conditions, fmt.Sprintf("visibility = $%d", len(args)+1))
	args = append(args, visibility)

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.IsFree != nil {
		conditions = append(conditions, fmt.Sprintf("(pricing->>'isFree')::boolean = $%d", len(args)+1))
		args = append(args, *filter.IsFree)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + q + "%"
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR subtitle ILIKE $%d OR description ILIKE $%d OR tags::text ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1, len(args)+1))
		args = append(args, pattern)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	var orderBy string
	switch filter.SortBy {
	case "popular":
		orderBy = "enrolled_count DESC"
	case "rating":
		orderBy = "rating DESC"
	case "title":
		orderBy = "title ASC"
	default:
		orderBy = "created_at DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM courses%s ORDER BY %s LIMIT %d OFFSET %d",
		courseColumns, clause, orderBy, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its storage-internal identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCourseID returns a course by its stable business identifier.
func (r *CourseRepository) FindByCourseID(ctx context.Context, courseID string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE course_id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseID); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if course.CourseID == "" {
		course.CourseID = "course_" + uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, course_id, title, subtitle, description, thumbnail, instructor,
        category, level, modules, pricing, duration_hours, lessons_count, enrolled_count, rating, rating_count,
        review_count, tags, languages, status, visibility, created_at, updated_at)
        VALUES (:id, :course_id, :title, :subtitle, :description, :thumbnail, :instructor, :category, :level,
        :modules, :pricing, :duration_hours, :lessons_count, :enrolled_count, :rating, :rating_count,
        :review_count, :tags, :languages, :status, :visibility, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// IncrementEnrolledCount atomically bumps the counter for the course with
// the given business id. The counter is never read-modified-written in
// application code and never decremented.
func (r *CourseRepository) IncrementEnrolledCount(ctx context.Context, courseID string) (int64, error) {
	const query = `UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE course_id = $1`
	res, err := r.db.ExecContext(ctx, query, courseID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("increment enrolled count: %w", err)
	}
	return res.RowsAffected()
}

// IncrementEnrolledCountByInternalID is the fallback for payment records
// whose course reference turned out to be a storage-internal id.
func (r *CourseRepository) IncrementEnrolledCountByInternalID(ctx context.Context, id string) (int64, error) {
	const query = `UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("increment enrolled count by internal id: %w", err)
	}
	return res.RowsAffected()
}
