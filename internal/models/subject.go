package models

import "time"

// Subject is one term-specific offering of a course. Code identifies the
// course across semesters; ID identifies this particular offering.
// AvailableSeats is owned by the seat allocator and always equals
// TotalSeats minus the count of active enrollments.
type Subject struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Code           string    `db:"code" json:"code"`
	Description    string    `db:"description" json:"description"`
	SemesterID     string    `db:"semester_id" json:"semester_id"`
	TotalSeats     int       `db:"total_seats" json:"total_seats"`
	AvailableSeats int       `db:"available_seats" json:"available_seats"`
	CreatedBy      string    `db:"created_by" json:"created_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail enriches Subject with semester info and the live
// enrollment count.
type SubjectDetail struct {
	Subject
	SemesterName  string `db:"semester_name" json:"semester_name"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}

// CatalogSubject is the student-facing catalog view: a subject annotated
// with everything the student needs to know before attempting to enroll.
// The flags are advisory; the seat allocator re-verifies all of them
// inside its transaction.
type CatalogSubject struct {
	Subject
	SemesterName       string `db:"semester_name" json:"semester_name"`
	SemesterActive     bool   `db:"semester_active" json:"semester_active"`
	EnrolledCount      int    `db:"enrolled_count" json:"enrolled_count"`
	AlreadyEnrolled    bool   `db:"already_enrolled" json:"already_enrolled"`
	AlreadyCompleted   bool   `db:"already_completed" json:"already_completed"`
	AlreadyTakenCourse bool   `db:"already_taken_course" json:"already_taken_course"`
	EnrolledInSemester bool   `db:"enrolled_in_semester" json:"enrolled_in_semester"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	SemesterID string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
