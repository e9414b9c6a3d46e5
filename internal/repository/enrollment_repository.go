package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

// EnrollmentRepository owns all writes to enrollments and to
// subjects.available_seats. Seat counts live only in the database; every
// read-then-write on them happens inside a single transaction here.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll atomically claims one seat in the subject for the student.
//
// The transaction runs serializable: two requests racing for the last
// seat must not both observe available_seats > 0. The eligibility checks
// are repeated inside the transaction because the service-level pre-check
// runs without any lock and may be stale; the row lock taken by
// FOR UPDATE serializes allocators on the same subject, and the unique
// constraints on enrollments are the last line of defense for races the
// in-transaction reads still cannot see.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, subjectID, semesterID string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin enroll transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var subject struct {
		Code string `db:"code"`
		Name string `db:"name"`
	}
	if err = tx.GetContext(ctx, &subject, `SELECT code, name FROM subjects WHERE id = $1`, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, allocatorFailure(err, "load subject")
	}

	if err = checkEligibility(ctx, tx, studentID, subject.Code, subject.Name, semesterID); err != nil {
		return nil, allocatorFailure(err, "verify eligibility")
	}

	// Row-level lock on the subject; concurrent allocators for the same
	// subject serialize here before reading the seat count.
	var locked models.Subject
	const lockQuery = `SELECT id, name, code, semester_id, total_seats, available_seats FROM subjects WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &locked, lockQuery, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, allocatorFailure(err, "lock subject")
	}

	if locked.AvailableSeats <= 0 {
		return nil, appErrors.Clone(appErrors.ErrCapacity, "")
	}
	if locked.SemesterID != semesterID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject does not belong to this semester")
	}

	if _, err = tx.ExecContext(ctx, `UPDATE subjects SET available_seats = available_seats - 1 WHERE id = $1`, subjectID); err != nil {
		return nil, allocatorFailure(err, "decrement seats")
	}

	enrollment = &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		SubjectID:  subjectID,
		SemesterID: semesterID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	const insertQuery = `INSERT INTO enrollments (id, student_id, subject_id, semester_id, status, enrolled_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, insertQuery, enrollment.ID, enrollment.StudentID, enrollment.SubjectID, enrollment.SemesterID, enrollment.Status, enrollment.EnrolledAt); err != nil {
		return nil, allocatorFailure(err, "insert enrollment")
	}

	if err = tx.Commit(); err != nil {
		return nil, allocatorFailure(err, "commit enrollment")
	}
	return enrollment, nil
}

// Withdraw returns the student's seat to the pool and marks the
// enrollment dropped. The enrollment row is locked first so a concurrent
// double-withdraw cannot return the same seat twice. The unique
// (student, subject) row survives the drop, so re-enrolling in the same
// subject stays blocked by the constraint.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, enrollmentID, studentID string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin withdraw transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Enrollment
	const lockQuery = `SELECT id, student_id, subject_id, semester_id, status, enrolled_at FROM enrollments
WHERE id = $1 AND student_id = $2 AND status = $3 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, enrollmentID, studentID, models.EnrollmentStatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found or already dropped")
		}
		return nil, allocatorFailure(err, "load enrollment")
	}

	if _, err = tx.ExecContext(ctx, `UPDATE subjects SET available_seats = available_seats + 1 WHERE id = $1`, current.SubjectID); err != nil {
		return nil, allocatorFailure(err, "return seat")
	}
	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $1 WHERE id = $2`, models.EnrollmentStatusDropped, enrollmentID); err != nil {
		return nil, allocatorFailure(err, "update enrollment status")
	}

	if err = tx.Commit(); err != nil {
		return nil, allocatorFailure(err, "commit withdrawal")
	}

	current.Status = models.EnrollmentStatusDropped
	return &current, nil
}

// checkEligibility runs the three business-rule checks in order,
// short-circuiting on the first failure. The order matters for message
// specificity only; enforcement does not depend on it.
func checkEligibility(ctx context.Context, q sqlx.QueryerContext, studentID, courseCode, subjectName, semesterID string) error {
	conflict, err := activeCourseConflict(ctx, q, studentID, courseCode)
	if err != nil {
		return err
	}
	if conflict != nil {
		msg := fmt.Sprintf("you have already taken %s (%s) in %s and cannot repeat the same course", subjectName, courseCode, conflict.SemesterName)
		return appErrors.Clone(appErrors.ErrEligibility, msg)
	}

	completed, err := completedCourse(ctx, q, studentID, courseCode)
	if err != nil {
		return err
	}
	if completed {
		msg := fmt.Sprintf("you have already completed %s (%s) in a previous semester", subjectName, courseCode)
		return appErrors.Clone(appErrors.ErrEligibility, msg)
	}

	current, err := activeSemesterSubject(ctx, q, studentID, semesterID)
	if err != nil {
		return err
	}
	if current != "" {
		msg := fmt.Sprintf("you are already enrolled in %s for this semester", current)
		return appErrors.Clone(appErrors.ErrEligibility, msg)
	}
	return nil
}

// activeCourseConflict finds an active enrollment by the student in any
// subject sharing the course code, across all semesters.
func activeCourseConflict(ctx context.Context, q sqlx.QueryerContext, studentID, courseCode string) (*models.CourseConflict, error) {
	const query = `SELECT s.name AS subject_name, s.code AS subject_code, sem.name AS semester_name
FROM enrollments e
JOIN subjects s ON s.id = e.subject_id
JOIN semesters sem ON sem.id = s.semester_id
WHERE e.student_id = $1 AND s.code = $2 AND e.status = $3
LIMIT 1`
	var conflict models.CourseConflict
	if err := sqlx.GetContext(ctx, q, &conflict, query, studentID, courseCode, models.EnrollmentStatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("check course conflict: %w", err)
	}
	return &conflict, nil
}

// completedCourse reports whether the student has a history record for
// the course code.
func completedCourse(ctx context.Context, q sqlx.QueryerContext, studentID, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM enrollment_history eh
JOIN subjects s ON s.id = eh.subject_id
WHERE eh.student_id = $1 AND s.code = $2
LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, q, &exists, query, studentID, courseCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check completed course: %w", err)
	}
	return true, nil
}

// activeSemesterSubject returns the name of the subject the student is
// actively enrolled in for the semester, or "" when there is none.
func activeSemesterSubject(ctx context.Context, q sqlx.QueryerContext, studentID, semesterID string) (string, error) {
	const query = `SELECT s.name FROM enrollments e
JOIN subjects s ON s.id = e.subject_id
WHERE e.student_id = $1 AND e.semester_id = $2 AND e.status = $3
LIMIT 1`
	var name string
	if err := sqlx.GetContext(ctx, q, &name, query, studentID, semesterID, models.EnrollmentStatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("check semester enrollment: %w", err)
	}
	return name, nil
}

// CheckEligibility is the un-locked pre-check exposed to the service
// layer. It evaluates the same rules as the allocator but outside any
// transaction; its verdict may be stale by the time the allocator runs.
func (r *EnrollmentRepository) CheckEligibility(ctx context.Context, studentID, subjectID, semesterID string) error {
	var subject struct {
		Code string `db:"code"`
		Name string `db:"name"`
	}
	if err := r.db.GetContext(ctx, &subject, `SELECT code, name FROM subjects WHERE id = $1`, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return fmt.Errorf("load subject: %w", err)
	}
	return checkEligibility(ctx, r.db, studentID, subject.Code, subject.Name, semesterID)
}

// FindDetailByID returns an enrollment with subject and semester context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.subject_id, e.semester_id, e.status, e.enrolled_at,
s.name AS subject_name, s.code AS subject_code, s.description AS subject_description,
sem.name AS semester_name, sem.start_date AS semester_start, sem.end_date AS semester_end
FROM enrollments e
JOIN subjects s ON s.id = e.subject_id
JOIN semesters sem ON sem.id = e.semester_id
WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListActiveByStudent returns the student's active enrollments with
// subject and semester context, newest first.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.subject_id, e.semester_id, e.status, e.enrolled_at,
s.name AS subject_name, s.code AS subject_code, s.description AS subject_description,
sem.name AS semester_name, sem.start_date AS semester_start, sem.end_date AS semester_end
FROM enrollments e
JOIN subjects s ON s.id = e.subject_id
JOIN semesters sem ON sem.id = e.semester_id
WHERE e.student_id = $1 AND e.status = $2
ORDER BY e.enrolled_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// Roster returns the active enrollments for a subject with student info,
// in enrollment order.
func (r *EnrollmentRepository) Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id, e.student_id, e.subject_id, e.semester_id, e.status, e.enrolled_at,
u.full_name, u.email, u.roll_number
FROM enrollments e
JOIN users u ON u.id = e.student_id
WHERE e.subject_id = $1 AND e.status = $2
ORDER BY e.enrolled_at ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, subjectID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list subject roster: %w", err)
	}
	return entries, nil
}

// allocatorFailure routes transactional failures through the conflict
// translation boundary, wrapping anything that was not a recognized
// conflict signal.
func allocatorFailure(err error, op string) error {
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	if translated := translateConflict(err); translated != err {
		return translated
	}
	return fmt.Errorf("%s: %w", op, err)
}
