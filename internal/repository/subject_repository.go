package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

// SubjectRepository handles persistence for subjects. It never touches
// available_seats outside of capacity resizing; seat accounting for
// enrollments belongs to the EnrollmentRepository.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Create persists a new subject with a full seat pool.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	subject.AvailableSeats = subject.TotalSeats
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now

	const query = `INSERT INTO subjects (id, name, code, description, semester_id, total_seats, available_seats, created_by, created_at, updated_at)
VALUES (:id, :name, :code, :description, :semester_id, :total_seats, :available_seats, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		if isUniqueViolation(err, constraintSubjectCode) {
			return appErrors.Clone(appErrors.ErrValidation, "subject with this code already exists for this semester")
		}
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// FindByID returns a subject by its ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, name, code, description, semester_id, total_seats, available_seats, created_by, created_at, updated_at
FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// List returns subjects with their live enrollment counts.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	base := `FROM subjects s
JOIN semesters sem ON sem.id = s.semester_id`
	var conditions []string
	var args []interface{}

	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("s.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.name ILIKE $%d OR s.code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "s.name",
		"code":       "s.code",
		"created_at": "s.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.name, s.code, s.description, s.semester_id, s.total_seats, s.available_seats, s.created_by, s.created_at, s.updated_at,
sem.name AS semester_name,
(SELECT COUNT(*) FROM enrollments WHERE subject_id = s.id AND status = 'active') AS enrolled_count
%s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var subjects []models.SubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// SubjectUpdateParams holds optional fields for updating a subject.
type SubjectUpdateParams struct {
	Name        *string
	Description *string
	TotalSeats  *int
}

// Update modifies subject fields. Resizing total_seats locks the row and
// recomputes available_seats from the enrolled count; shrinking below the
// enrolled count is rejected so the capacity invariant cannot break.
func (r *SubjectRepository) Update(ctx context.Context, id string, params SubjectUpdateParams) (subject *models.Subject, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin subject update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Subject
	const lockQuery = `SELECT id, name, code, description, semester_id, total_seats, available_seats, created_by, created_at, updated_at
FROM subjects WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, fmt.Errorf("lock subject: %w", err)
	}

	enrolled := current.TotalSeats - current.AvailableSeats
	newAvailable := current.AvailableSeats
	if params.TotalSeats != nil {
		if *params.TotalSeats < enrolled {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot reduce seats below enrolled count (%d)", enrolled))
		}
		newAvailable = *params.TotalSeats - enrolled
	}

	const updateQuery = `UPDATE subjects SET
name = COALESCE($1, name),
description = COALESCE($2, description),
total_seats = COALESCE($3, total_seats),
available_seats = $4
WHERE id = $5
RETURNING id, name, code, description, semester_id, total_seats, available_seats, created_by, created_at, updated_at`
	var updated models.Subject
	if err = tx.GetContext(ctx, &updated, updateQuery, params.Name, params.Description, params.TotalSeats, newAvailable, id); err != nil {
		return nil, fmt.Errorf("update subject: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit subject update: %w", err)
	}
	return &updated, nil
}

// ListCatalog returns the subjects of a semester annotated for the
// requesting student: live seat counts plus the advisory eligibility
// flags the dashboard shows before an enroll attempt.
func (r *SubjectRepository) ListCatalog(ctx context.Context, studentID, semesterID string) ([]models.CatalogSubject, error) {
	const query = `SELECT
s.id, s.name, s.code, s.description, s.semester_id, s.total_seats, s.available_seats, s.created_by, s.created_at, s.updated_at,
sem.name AS semester_name,
sem.is_active AS semester_active,
(SELECT COUNT(*) FROM enrollments WHERE subject_id = s.id AND status = 'active') AS enrolled_count,
EXISTS(
	SELECT 1 FROM enrollments
	WHERE student_id = $1 AND subject_id = s.id
) AS already_enrolled,
EXISTS(
	SELECT 1 FROM enrollment_history
	WHERE student_id = $1 AND subject_id = s.id
) AS already_completed,
EXISTS(
	SELECT 1 FROM enrollments e2
	JOIN subjects s2 ON e2.subject_id = s2.id
	WHERE e2.student_id = $1
	AND s2.code = s.code
	AND e2.status = 'active'
) AS already_taken_course,
EXISTS(
	SELECT 1 FROM enrollments
	WHERE student_id = $1 AND semester_id = $2 AND status = 'active'
) AS enrolled_in_semester
FROM subjects s
JOIN semesters sem ON sem.id = s.semester_id
WHERE s.semester_id = $2
ORDER BY s.name`
	var subjects []models.CatalogSubject
	if err := r.db.SelectContext(ctx, &subjects, query, studentID, semesterID); err != nil {
		return nil, fmt.Errorf("list subject catalog: %w", err)
	}
	return subjects, nil
}
