package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/pkg/database"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryFindByUserAndCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	progress := models.Progress{CompletionPercentage: 50}
	raw, err := progress.Value()
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "user_id", "course_id", "enrolled_at", "progress", "status", "created_at", "updated_at"}).
		AddRow("enrollment_1", "user-1", "course_abc", time.Now(), raw, models.EnrollmentStatusActive, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT %s FROM enrollments WHERE user_id = $1 AND course_id = $2", enrollmentColumns))).
		WithArgs("user-1", "course_abc").
		WillReturnRows(rows)

	enrollment, err := repo.FindByUserAndCourse(context.Background(), "user-1", "course_abc")
	require.NoError(t, err)
	require.Equal(t, "enrollment_1", enrollment.ID)
	require.Equal(t, 50, enrollment.Progress.CompletionPercentage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByUserAndCoursePassesThroughNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT %s FROM enrollments WHERE user_id = $1 AND course_id = $2", enrollmentColumns))).
		WithArgs("user-1", "course_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUserAndCourse(context.Background(), "user-1", "course_missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateReturnsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	pqErr := &pq.Error{Code: "23505", Constraint: UniqueEnrollmentConstraint}
	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(pqErr)

	err := repo.Create(context.Background(), &models.Enrollment{UserID: "user-1", CourseID: "course_abc"})
	require.Error(t, err)
	require.True(t, database.IsUniqueViolation(err, UniqueEnrollmentConstraint))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{UserID: "user-1", CourseID: "course_abc"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Contains(t, enrollment.ID, "enrollment_")
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.False(t, enrollment.EnrolledAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET progress").WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{ID: "enrollment_1", Status: models.EnrollmentStatusCompleted}
	require.NoError(t, repo.Update(context.Background(), enrollment))
	require.False(t, enrollment.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
