package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campus-systems/enroll-api/internal/models"
)

// StatsRepository aggregates platform-wide counts for the teacher
// dashboard.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Statistics returns the aggregate snapshot in a single round trip.
func (r *StatsRepository) Statistics(ctx context.Context) (*models.Statistics, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM subjects) AS total_subjects,
(SELECT COUNT(*) FROM enrollments WHERE status = 'active') AS total_enrollments,
(SELECT COUNT(*) FROM users WHERE role = 'student') AS total_students,
(SELECT COUNT(*) FROM semesters WHERE is_active = true) AS active_semesters`
	var stats models.Statistics
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}
	return &stats, nil
}
