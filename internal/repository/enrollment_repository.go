package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edushare/course-api/internal/models"
)

const enrollmentColumns = `id, user_id, course_id, enrolled_at, progress, status, created_at, updated_at`

// UniqueEnrollmentConstraint names the storage-level guard against
// duplicate (user_id, course_id) rows.
const UniqueEnrollmentConstraint = "uq_enrollments_user_course"

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByUserAndCourse returns the enrollment for a (user, business course
// id) pair. sql.ErrNoRows is passed through when absent.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE user_id = $1 AND course_id = $2", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByUser returns a user's enrollments, most recent first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC", enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment. A unique-violation error from the
// (user_id, course_id) constraint is returned unwrapped so callers can
// treat it as the authoritative "already enrolled" signal.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enrollment_" + uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, user_id, course_id, enrolled_at, progress, status, created_at, updated_at)
        VALUES (:id, :user_id, :course_id, :enrolled_at, :progress, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return err
	}
	return nil
}

// Update persists progress and status in a single atomic write.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET progress = :progress, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}
