package models

import (
	"database/sql/driver"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. The active -> completed transition is
// one-way and driven solely by progress reaching 100%.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

// CompletedLesson records a finished lesson with its completion time.
type CompletedLesson struct {
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completedAt"`
}

// LastAccessedLesson points at the learner's most recent position.
type LastAccessedLesson struct {
	LessonID string `json:"lesson_id"`
	ModuleID string `json:"module_id"`
}

// Progress is the JSONB-backed progress document of an enrollment.
type Progress struct {
	CompletedLessons     []CompletedLesson   `json:"completedLessons"`
	LastAccessedLesson   *LastAccessedLesson `json:"lastAccessedLesson,omitempty"`
	CompletionPercentage int                 `json:"completionPercentage"`
}

// Value marshals the progress document for persistence.
func (p Progress) Value() (driver.Value, error) {
	if p.CompletedLessons == nil {
		p.CompletedLessons = []CompletedLesson{}
	}
	return jsonValue(p)
}

// Scan unmarshals a JSONB payload into the progress document.
func (p *Progress) Scan(src interface{}) error { return jsonScan(src, p) }

// HasLesson reports whether the lesson is already in the completed set.
func (p *Progress) HasLesson(lessonID string) bool {
	for _, l := range p.CompletedLessons {
		if l.LessonID == lessonID {
			return true
		}
	}
	return false
}

// MarkLesson adds the lesson to the completed set. Set semantics: marking
// an already-completed lesson is a no-op and returns false.
func (p *Progress) MarkLesson(lessonID string, at time.Time) bool {
	if p.HasLesson(lessonID) {
		return false
	}
	p.CompletedLessons = append(p.CompletedLessons, CompletedLesson{LessonID: lessonID, CompletedAt: at})
	return true
}

// Enrollment captures a user's registration to a course, keyed by
// (user_id, course_id) where course_id is the course's business id.
type Enrollment struct {
	ID         string           `db:"id" json:"enrollment_id"`
	UserID     string           `db:"user_id" json:"user_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolledAt"`
	Progress   Progress         `db:"progress" json:"progress"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	CreatedAt  time.Time        `db:"created_at" json:"-"`
	UpdatedAt  time.Time        `db:"updated_at" json:"-"`
}
