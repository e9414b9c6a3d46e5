package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/internal/repository"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

type semesterRepository interface {
	Create(ctx context.Context, semester *models.Semester) error
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	Update(ctx context.Context, id string, params repository.SemesterUpdateParams) (*models.Semester, error)
}

// CreateSemesterRequest holds fields for creating a semester.
type CreateSemesterRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	IsActive  bool      `json:"is_active"`
}

// UpdateSemesterRequest holds optional fields for updating a semester.
type UpdateSemesterRequest struct {
	Name      *string    `json:"name,omitempty" validate:"omitempty,min=1"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

// SemesterService manages academic terms.
type SemesterService struct {
	repo      semesterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs SemesterService.
func NewSemesterService(repo semesterRepository, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{repo: repo, validator: validate, logger: logger}
}

// Create adds a semester.
func (s *SemesterService) Create(ctx context.Context, creatorID string, req CreateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}

	semester := &models.Semester{
		ID:        uuid.NewString(),
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsActive:  req.IsActive,
		CreatedBy: creatorID,
	}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, s.passthrough(err, "failed to create semester")
	}

	s.logger.Info("semester created", zap.String("semester_id", semester.ID), zap.String("name", semester.Name))
	return semester, nil
}

// Get returns one semester by ID.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.passthrough(err, "semester lookup failed")
	}
	return semester, nil
}

// List returns semesters matching the filter along with the total count.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, s.passthrough(err, "failed to list semesters")
	}
	return semesters, total, nil
}

// Update modifies a semester.
func (s *SemesterService) Update(ctx context.Context, id string, req UpdateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		return nil, appErrors.New(appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end_date must be after start_date")
	}

	semester, err := s.repo.Update(ctx, id, repository.SemesterUpdateParams{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsActive:  req.IsActive,
	})
	if err != nil {
		return nil, s.passthrough(err, "failed to update semester")
	}
	return semester, nil
}

func (s *SemesterService) passthrough(err error, message string) error {
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "server error")
}
