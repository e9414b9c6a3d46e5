package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/internal/repository"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
	"github.com/campus-systems/enroll-api/pkg/export"
)

type subjectRepository interface {
	Create(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
	Update(ctx context.Context, id string, params repository.SubjectUpdateParams) (*models.Subject, error)
	ListCatalog(ctx context.Context, studentID, semesterID string) ([]models.CatalogSubject, error)
}

type semesterFinder interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

type rosterReader interface {
	Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error)
}

type rosterExporter interface {
	Render(roster export.Roster) ([]byte, error)
}

// Roster export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// CreateSubjectRequest holds fields for creating a subject.
type CreateSubjectRequest struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
	SemesterID  string `json:"semester_id" validate:"required,uuid"`
	TotalSeats  int    `json:"total_seats" validate:"required,gt=0"`
}

// UpdateSubjectRequest holds optional fields for updating a subject.
type UpdateSubjectRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	TotalSeats  *int    `json:"total_seats,omitempty" validate:"omitempty,gt=0"`
}

// SubjectService manages subject offerings, the student catalog, and
// roster exports.
type SubjectService struct {
	repo      subjectRepository
	semesters semesterFinder
	roster    rosterReader
	cache     *CacheService
	csv       rosterExporter
	pdf       rosterExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, semesters semesterFinder, roster rosterReader, cache *CacheService, csv, pdf rosterExporter, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{
		repo:      repo,
		semesters: semesters,
		roster:    roster,
		cache:     cache,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
	}
}

// Create adds a subject offering to a semester.
func (s *SubjectService) Create(ctx context.Context, creatorID string, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	if _, err := s.semesters.FindByID(ctx, req.SemesterID); err != nil {
		return nil, s.passthrough(err, "semester lookup failed")
	}

	subject := &models.Subject{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Description: req.Description,
		SemesterID:  req.SemesterID,
		TotalSeats:  req.TotalSeats,
		CreatedBy:   creatorID,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, s.passthrough(err, "failed to create subject")
	}

	s.invalidateCatalog(ctx, subject.SemesterID)
	s.logger.Info("subject created",
		zap.String("subject_id", subject.ID),
		zap.String("code", subject.Code),
		zap.String("semester_id", subject.SemesterID))
	return subject, nil
}

// Get returns one subject by ID.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.passthrough(err, "subject lookup failed")
	}
	return subject, nil
}

// List returns subjects matching the filter along with the total count.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, s.passthrough(err, "failed to list subjects")
	}
	return subjects, total, nil
}

// Update modifies a subject. A seat resize is validated against the live
// enrollment count inside the repository's transaction.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.repo.Update(ctx, id, repository.SubjectUpdateParams{
		Name:        req.Name,
		Description: req.Description,
		TotalSeats:  req.TotalSeats,
	})
	if err != nil {
		return nil, s.passthrough(err, "failed to update subject")
	}

	s.invalidateCatalog(ctx, subject.SemesterID)
	return subject, nil
}

// Catalog returns the annotated subject catalog for a student. Results
// are cached per semester and student; enrollment writes invalidate the
// whole semester's catalog entries.
func (s *SubjectService) Catalog(ctx context.Context, studentID, semesterID string) ([]models.CatalogSubject, error) {
	key := fmt.Sprintf("catalog:%s:%s", semesterID, studentID)

	var cached []models.CatalogSubject
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	subjects, err := s.repo.ListCatalog(ctx, studentID, semesterID)
	if err != nil {
		return nil, s.passthrough(err, "failed to load catalog")
	}

	_ = s.cache.Set(ctx, key, subjects, 0)
	return subjects, nil
}

// Roster returns the active roster for a subject.
func (s *SubjectService) Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error) {
	if _, err := s.repo.FindByID(ctx, subjectID); err != nil {
		return nil, s.passthrough(err, "subject lookup failed")
	}
	entries, err := s.roster.Roster(ctx, subjectID)
	if err != nil {
		return nil, s.passthrough(err, "failed to load roster")
	}
	return entries, nil
}

// ExportRoster renders the subject's active roster as CSV or PDF and
// returns the bytes together with a suggested file name.
func (s *SubjectService) ExportRoster(ctx context.Context, subjectID, format string) ([]byte, string, error) {
	subject, err := s.repo.FindByID(ctx, subjectID)
	if err != nil {
		return nil, "", s.passthrough(err, "subject lookup failed")
	}
	semester, err := s.semesters.FindByID(ctx, subject.SemesterID)
	if err != nil {
		return nil, "", s.passthrough(err, "semester lookup failed")
	}
	entries, err := s.roster.Roster(ctx, subjectID)
	if err != nil {
		return nil, "", s.passthrough(err, "failed to load roster")
	}

	roster := export.Roster{
		SubjectName:  subject.Name,
		SubjectCode:  subject.Code,
		SemesterName: semester.Name,
		Rows:         make([]export.RosterRow, 0, len(entries)),
	}
	for _, entry := range entries {
		roll := ""
		if entry.RollNumber != nil {
			roll = *entry.RollNumber
		}
		roster.Rows = append(roster.Rows, export.RosterRow{
			RollNumber: roll,
			FullName:   entry.FullName,
			Email:      entry.Email,
			EnrolledAt: entry.EnrolledAt.UTC().Format("2006-01-02 15:04"),
		})
	}

	var exporter rosterExporter
	switch strings.ToLower(format) {
	case ExportFormatCSV:
		exporter = s.csv
	case ExportFormatPDF:
		exporter = s.pdf
	default:
		return nil, "", appErrors.New(appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}

	payload, err := exporter.Render(roster)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	filename := fmt.Sprintf("roster_%s_%s.%s", strings.ToLower(subject.Code), strings.ReplaceAll(strings.ToLower(semester.Name), " ", "_"), strings.ToLower(format))
	return payload, filename, nil
}

func (s *SubjectService) passthrough(err error, message string) error {
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

func (s *SubjectService) invalidateCatalog(ctx context.Context, semesterID string) {
	if !s.cache.Enabled() {
		return
	}
	s.cache.Invalidate(ctx, "catalog:"+semesterID+":*")
	s.cache.Invalidate(ctx, "stats")
}
