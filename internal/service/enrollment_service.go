package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, studentID, subjectID, semesterID string) (*models.Enrollment, error)
	Withdraw(ctx context.Context, enrollmentID, studentID string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type historyReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.HistoryDetail, error)
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	SubjectID  string `json:"subject_id" validate:"required,uuid"`
	SemesterID string `json:"semester_id" validate:"required,uuid"`
}

// EnrollmentService orchestrates the enrollment lifecycle: the cheap
// eligibility pre-check, the transactional seat allocation, and the
// read endpoints around them. It never retries a conflicted attempt;
// retryability travels to the caller on the error.
type EnrollmentService struct {
	repo        enrollmentRepository
	eligibility *EligibilityChecker
	history     historyReader
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, eligibility *EligibilityChecker, history historyReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, eligibility: eligibility, history: history, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Enroll places the student into the subject if eligibility and capacity
// allow. The pre-check runs first so most rejections are cheap; the
// allocator's transaction is authoritative and re-verifies everything.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID string, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.ObserveEnrollment("enroll", OutcomeInvalid, 0)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if err := s.eligibility.Check(ctx, studentID, req.SubjectID, req.SemesterID); err != nil {
		s.metrics.ObserveEnrollment("enroll", outcomeFromError(err), 0)
		return nil, s.classify(err, "eligibility check failed")
	}

	start := time.Now()
	enrollment, err := s.repo.Enroll(ctx, studentID, req.SubjectID, req.SemesterID)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveEnrollment("enroll", outcomeFromError(err), elapsed)
		return nil, s.classify(err, "enrollment failed")
	}
	s.metrics.ObserveEnrollment("enroll", OutcomeEnrolled, elapsed)

	s.invalidateReadCaches(ctx, enrollment.SemesterID)

	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", studentID),
		zap.String("subject_id", enrollment.SubjectID))

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Withdraw drops the student's enrollment and returns the seat to the
// pool. The (student, subject) uniqueness row remains, so the student
// cannot re-enroll in the same subject afterwards.
func (s *EnrollmentService) Withdraw(ctx context.Context, studentID, enrollmentID string) (*models.Enrollment, error) {
	start := time.Now()
	enrollment, err := s.repo.Withdraw(ctx, enrollmentID, studentID)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveEnrollment("withdraw", outcomeFromError(err), elapsed)
		return nil, s.classify(err, "withdrawal failed")
	}
	s.metrics.ObserveEnrollment("withdraw", OutcomeWithdrawn, elapsed)

	s.invalidateReadCaches(ctx, enrollment.SemesterID)

	s.logger.Info("student withdrew",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", studentID),
		zap.String("subject_id", enrollment.SubjectID))
	return enrollment, nil
}

// ListMine returns the student's active enrollments.
func (s *EnrollmentService) ListMine(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// History returns the student's completed subjects.
func (s *EnrollmentService) History(ctx context.Context, studentID string) ([]models.HistoryDetail, error) {
	records, err := s.history.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment history")
	}
	return records, nil
}

// classify passes typed errors through untouched and folds everything
// else into an internal error with a generic message.
func (s *EnrollmentService) classify(err error, message string) error {
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "server error during enrollment")
}

func (s *EnrollmentService) invalidateReadCaches(ctx context.Context, semesterID string) {
	if !s.cache.Enabled() {
		return
	}
	s.cache.Invalidate(ctx, "catalog:"+semesterID+":*")
	s.cache.Invalidate(ctx, "stats")
}

// outcomeFromError maps the typed error taxonomy to metric labels.
func outcomeFromError(err error) string {
	var typed *appErrors.Error
	if !errors.As(err, &typed) {
		return OutcomeError
	}
	switch typed.Code {
	case appErrors.ErrEligibility.Code:
		return OutcomeIneligible
	case appErrors.ErrCapacity.Code:
		return OutcomeNoSeats
	case appErrors.ErrConflict.Code:
		return OutcomeConflict
	case appErrors.ErrNotFound.Code:
		return OutcomeNotFound
	case appErrors.ErrValidation.Code:
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
