package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/edushare/course-api/internal/models"
)

func courseRow(t *testing.T, id, courseID, title string) *sqlmock.Rows {
	t.Helper()
	pricing, err := models.Pricing{IsFree: false, Price: 299000, Currency: "VND"}.Value()
	require.NoError(t, err)
	thumbnail, err := models.Thumbnail{}.Value()
	require.NoError(t, err)
	instructor, err := models.Instructor{Name: "A. Instructor"}.Value()
	require.NoError(t, err)
	modules, err := models.ModuleList{}.Value()
	require.NoError(t, err)
	tags, err := models.StringList{"go"}.Value()
	require.NoError(t, err)
	languages, err := models.StringList{"en"}.Value()
	require.NoError(t, err)

	return sqlmock.NewRows([]string{
		"id", "course_id", "title", "subtitle", "description", "thumbnail", "instructor", "category", "level",
		"modules", "pricing", "duration_hours", "lessons_count", "enrolled_count", "rating", "rating_count",
		"review_count", "tags", "languages", "status", "visibility", "created_at", "updated_at",
	}).AddRow(id, courseID, title, "", "", thumbnail, instructor, "programming", "beginner",
		modules, pricing, 10, 42, 7, 4.5, 12, 3, tags, languages,
		models.CourseStatusPublished, models.CourseVisibilityPublic, time.Now(), time.Now())
}

func TestCourseRepositoryFindByCourseID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf("SELECT %s FROM courses WHERE course_id = $1", courseColumns))).
		WithArgs("course_abc").
		WillReturnRows(courseRow(t, "64a1b2c3d4e5f60718293a4b", "course_abc", "Intro to Go"))

	course, err := repo.FindByCourseID(context.Background(), "course_abc")
	require.NoError(t, err)
	require.Equal(t, "Intro to Go", course.Title)
	require.Equal(t, 7, course.EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListAppliesFiltersAndCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM courses WHERE status = \\$1 AND visibility = \\$2 AND category = \\$3").
		WithArgs(models.CourseStatusPublished, models.CourseVisibilityPublic, "programming").
		WillReturnRows(courseRow(t, "id-1", "course_abc", "Intro to Go"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM courses WHERE status = \\$1 AND visibility = \\$2 AND category = \\$3").
		WithArgs(models.CourseStatusPublished, models.CourseVisibilityPublic, "programming").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{Category: "programming", Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryIncrementEnrolledCountReportsMatches(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE course_id = $1")).
		WithArgs("course_missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = $2 WHERE id = $1")).
		WithArgs("course_missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.IncrementEnrolledCount(context.Background(), "course_missing")
	require.NoError(t, err)
	require.Zero(t, affected)

	affected, err = repo.IncrementEnrolledCountByInternalID(context.Background(), "course_missing")
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateMintsIdentifiers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))

	course := &models.Course{Title: "Intro to Go"}
	require.NoError(t, repo.Create(context.Background(), course))
	require.Len(t, course.ID, 32)
	require.Contains(t, course.CourseID, "course_")
	require.NoError(t, mock.ExpectationsWereMet())
}
