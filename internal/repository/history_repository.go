package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campus-systems/enroll-api/internal/models"
)

// HistoryRepository reads the permanent record of completed subjects.
// Writes come from an external end-of-term job; this service never
// inserts history rows.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListByStudent returns the student's completed subjects, newest first.
func (r *HistoryRepository) ListByStudent(ctx context.Context, studentID string) ([]models.HistoryDetail, error) {
	const query = `SELECT eh.id, eh.student_id, eh.subject_id, eh.semester_id, eh.completed_at,
s.name AS subject_name, s.code AS subject_code, sem.name AS semester_name
FROM enrollment_history eh
JOIN subjects s ON s.id = eh.subject_id
JOIN semesters sem ON sem.id = eh.semester_id
WHERE eh.student_id = $1
ORDER BY eh.completed_at DESC`
	var records []models.HistoryDetail
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollment history: %w", err)
	}
	return records, nil
}

// HasCompletedCourse reports whether the student ever completed any
// offering of the course code.
func (r *HistoryRepository) HasCompletedCourse(ctx context.Context, studentID, courseCode string) (bool, error) {
	return completedCourse(ctx, r.db, studentID, courseCode)
}
