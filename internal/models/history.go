package models

import "time"

// HistoryRecord is a permanent record of a completed subject. Rows are
// written by an external end-of-term job; this service only reads them
// to block retaking a completed course.
type HistoryRecord struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	SemesterID  string    `db:"semester_id" json:"semester_id"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
}

// HistoryDetail enriches HistoryRecord with subject and semester names.
type HistoryDetail struct {
	HistoryRecord
	SubjectName  string `db:"subject_name" json:"subject_name"`
	SubjectCode  string `db:"subject_code" json:"subject_code"`
	SemesterName string `db:"semester_name" json:"semester_name"`
}
