package models

import (
	"database/sql/driver"
	"time"
)

// Course lifecycle and visibility values.
const (
	CourseStatusPublished = "published"
	CourseStatusDraft     = "draft"

	CourseVisibilityPublic  = "public"
	CourseVisibilityPrivate = "private"
)

// Pricing describes how a course is sold.
type Pricing struct {
	IsFree        bool   `json:"isFree"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"originalPrice,omitempty"`
	Currency      string `json:"currency"`
}

// Value marshals pricing to JSON for persistence.
func (p Pricing) Value() (driver.Value, error) { return jsonValue(p) }

// Scan unmarshals a JSONB payload into the pricing struct.
func (p *Pricing) Scan(src interface{}) error { return jsonScan(src, p) }

// Lesson is a single unit of course content.
type Lesson struct {
	LessonID    string `json:"lesson_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Duration    int    `json:"duration"`
	Content     string `json:"content,omitempty"`
	VideoURL    string `json:"videoUrl,omitempty"`
	IsPreview   bool   `json:"isPreview"`
	Order       int    `json:"order"`
}

// Module groups lessons within a course.
type Module struct {
	ModuleID    string   `json:"module_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Lessons     []Lesson `json:"lessons"`
	Order       int      `json:"order"`
}

// ModuleList is the JSONB-backed module tree of a course.
type ModuleList []Module

// Value marshals the module tree for persistence.
func (m ModuleList) Value() (driver.Value, error) {
	if m == nil {
		m = ModuleList{}
	}
	return jsonValue(m)
}

// Scan unmarshals a JSONB payload into the module tree.
func (m *ModuleList) Scan(src interface{}) error { return jsonScan(src, m) }

// TotalLessons returns the live lesson count across all modules. Completion
// percentages are always computed against this, never a cached counter.
func (m ModuleList) TotalLessons() int {
	total := 0
	for _, module := range m {
		total += len(module.Lessons)
	}
	return total
}

// Thumbnail records an uploaded course image hosted elsewhere.
type Thumbnail struct {
	OriginalName string `json:"originalName,omitempty"`
	FileName     string `json:"fileName,omitempty"`
	FilePath     string `json:"filePath"`
	FileSize     int64  `json:"fileSize,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
}

// Value marshals the thumbnail for persistence.
func (t Thumbnail) Value() (driver.Value, error) { return jsonValue(t) }

// Scan unmarshals a JSONB payload into the thumbnail.
func (t *Thumbnail) Scan(src interface{}) error { return jsonScan(src, t) }

// Instructor identifies the course author.
type Instructor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Bio    string `json:"bio,omitempty"`
}

// Value marshals the instructor for persistence.
func (i Instructor) Value() (driver.Value, error) { return jsonValue(i) }

// Scan unmarshals a JSONB payload into the instructor.
func (i *Instructor) Scan(src interface{}) error { return jsonScan(src, i) }

// StringList is a JSONB-backed string array (tags, languages).
type StringList []string

// Value marshals the list for persistence.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return jsonValue(l)
}

// Scan unmarshals a JSONB payload into the list.
func (l *StringList) Scan(src interface{}) error { return jsonScan(src, l) }

// Course is a catalog document. ID is the storage-internal identifier;
// CourseID is the stable business identifier that enrollments and payments
// are keyed by.
type Course struct {
	ID            string     `db:"id" json:"id"`
	CourseID      string     `db:"course_id" json:"course_id"`
	Title         string     `db:"title" json:"title"`
	Subtitle      string     `db:"subtitle" json:"subtitle,omitempty"`
	Description   string     `db:"description" json:"description"`
	Thumbnail     *Thumbnail `db:"thumbnail" json:"thumbnail,omitempty"`
	Instructor    Instructor `db:"instructor" json:"instructor"`
	Category      string     `db:"category" json:"category"`
	Level         string     `db:"level" json:"level"`
	Modules       ModuleList `db:"modules" json:"modules,omitempty"`
	Pricing       Pricing    `db:"pricing" json:"pricing"`
	DurationHours int        `db:"duration_hours" json:"duration"`
	LessonsCount  int        `db:"lessons_count" json:"lessonsCount"`
	EnrolledCount int        `db:"enrolled_count" json:"enrolledCount"`
	Rating        float64    `db:"rating" json:"rating"`
	RatingCount   int        `db:"rating_count" json:"ratingCount"`
	ReviewCount   int        `db:"review_count" json:"reviewCount"`
	Tags          StringList `db:"tags" json:"tags"`
	Languages     StringList `db:"languages" json:"languages"`
	Status        string     `db:"status" json:"status"`
	Visibility    string     `db:"visibility" json:"visibility"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsFree reports whether the course requires no payment.
func (c *Course) IsFree() bool {
	return c.Pricing.IsFree || c.Pricing.Price == 0
}

// CourseFilter provides filters for catalog listing and search.
type CourseFilter struct {
	Query      string
	Category   string
	Level      string
	IsFree     *bool
	Status     string
	Visibility string
	SortBy     string
	Page       int
	PageSize   int
}
