package models

import "time"

// Semester models one academic term. Teachers manage semesters; students
// may hold at most one active enrollment per semester.
type Semester struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SemesterFilter defines filters supported by list endpoints.
type SemesterFilter struct {
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
