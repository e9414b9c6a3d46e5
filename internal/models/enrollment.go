package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. The completed transition is produced by
// an external end-of-term process, never by this service.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment captures a student's seat in a subject for a semester.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SubjectID  string           `db:"subject_id" json:"subject_id"`
	SemesterID string           `db:"semester_id" json:"semester_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches Enrollment with subject and semester info.
type EnrollmentDetail struct {
	Enrollment
	SubjectName        string    `db:"subject_name" json:"subject_name"`
	SubjectCode        string    `db:"subject_code" json:"subject_code"`
	SubjectDescription string    `db:"subject_description" json:"subject_description"`
	SemesterName       string    `db:"semester_name" json:"semester_name"`
	SemesterStart      time.Time `db:"semester_start" json:"semester_start"`
	SemesterEnd        time.Time `db:"semester_end" json:"semester_end"`
}

// RosterEntry is one student on a subject's active roster.
type RosterEntry struct {
	Enrollment
	FullName   string  `db:"full_name" json:"full_name"`
	Email      string  `db:"email" json:"email"`
	RollNumber *string `db:"roll_number" json:"roll_number,omitempty"`
}

// CourseConflict names the enrollment that blocks a repeat of the same
// course, for error-message specificity.
type CourseConflict struct {
	SubjectName  string `db:"subject_name"`
	SubjectCode  string `db:"subject_code"`
	SemesterName string `db:"semester_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	SubjectID  string
	SemesterID string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
