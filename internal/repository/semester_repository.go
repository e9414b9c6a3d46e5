package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

// SemesterRepository handles persistence for semesters.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository instantiates a semester repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// Create persists a new semester.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	semester.CreatedAt = now
	semester.UpdatedAt = now

	const query = `INSERT INTO semesters (id, name, start_date, end_date, is_active, created_by, created_at, updated_at)
VALUES (:id, :name, :start_date, :end_date, :is_active, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		if isUniqueViolation(err, constraintSemesterName) {
			return appErrors.Clone(appErrors.ErrValidation, "semester with this name already exists")
		}
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// FindByID returns a semester by its ID.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_by, created_at, updated_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// List returns semesters matching the provided filters, newest first.
func (r *SemesterRepository) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	base := "FROM semesters"
	var conditions []string
	var args []interface{}

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{
		"name":       true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
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

	query := fmt.Sprintf(`SELECT id, name, start_date, end_date, is_active, created_by, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		base+clause, sortBy, order, size, offset)

	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list semesters: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count semesters: %w", err)
	}
	return semesters, total, nil
}

// SemesterUpdateParams holds optional fields for updating a semester.
type SemesterUpdateParams struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
	IsActive  *bool
}

// Update modifies semester fields, keeping unspecified ones unchanged.
func (r *SemesterRepository) Update(ctx context.Context, id string, params SemesterUpdateParams) (*models.Semester, error) {
	const query = `UPDATE semesters SET
name = COALESCE($1, name),
start_date = COALESCE($2, start_date),
end_date = COALESCE($3, end_date),
is_active = COALESCE($4, is_active)
WHERE id = $5
RETURNING id, name, start_date, end_date, is_active, created_by, created_at, updated_at`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, params.Name, params.StartDate, params.EndDate, params.IsActive, id); err != nil {
		if isUniqueViolation(err, constraintSemesterName) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "semester with this name already exists")
		}
		return nil, err
	}
	return &semester, nil
}
