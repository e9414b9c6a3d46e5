package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Statistics is the platform-wide aggregate shown on the teacher dashboard.
type Statistics struct {
	TotalSubjects    int `db:"total_subjects" json:"total_subjects"`
	TotalEnrollments int `db:"total_enrollments" json:"total_enrollments"`
	TotalStudents    int `db:"total_students" json:"total_students"`
	ActiveSemesters  int `db:"active_semesters" json:"active_semesters"`
}
