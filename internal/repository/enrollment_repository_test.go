package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

const (
	testStudent  = "stu-1"
	testSubject  = "subj-1"
	testSemester = "sem-1"
)

// expectSubjectLookup mocks the code/name load that opens the enroll
// transaction.
func expectSubjectLookup(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT code, name FROM subjects WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("CS101", "Intro to CS"))
}

// expectEligibilityPass mocks all three eligibility queries returning no
// blocking rows.
func expectEligibilityPass(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT s.name AS subject_name, s.code AS subject_code, sem.name AS semester_name`)).
		WithArgs(testStudent, "CS101", models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM enrollment_history eh`)).
		WithArgs(testStudent, "CS101").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT s.name FROM enrollments e`)).
		WithArgs(testStudent, testSemester, models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)
}

func expectSubjectLock(mock sqlmock.Sqlmock, availableSeats int, semesterID string) {
	rows := sqlmock.NewRows([]string{"id", "name", "code", "semester_id", "total_seats", "available_seats"}).
		AddRow(testSubject, "Intro to CS", "CS101", semesterID, 30, availableSeats)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, code, semester_id, total_seats, available_seats FROM subjects WHERE id = $1 FOR UPDATE`)).
		WithArgs(testSubject).
		WillReturnRows(rows)
}

func TestEnrollmentRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	expectEligibilityPass(mock)
	expectSubjectLock(mock, 5, testSemester)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subjects SET available_seats = available_seats - 1 WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), testStudent, testSubject, testSemester, models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollNoSeats(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	expectEligibilityPass(mock)
	expectSubjectLock(mock, 0, testSemester)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrCapacity.Code, appErr.Code)
	require.False(t, appErr.Retryable)
	// No decrement and no insert were expected; a full row of seats must
	// never be given away once the count hits zero.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollSerializationFailure(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	expectEligibilityPass(mock)
	expectSubjectLock(mock, 1, testSemester)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subjects SET available_seats = available_seats - 1 WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.True(t, appErrors.IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollDuplicateSubject(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	expectEligibilityPass(mock)
	expectSubjectLock(mock, 3, testSemester)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subjects SET available_seats = available_seats - 1 WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), testStudent, testSubject, testSemester, models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_student_id_subject_id_key"})
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	// A past enrollment in the subject, dropped or not, blocks forever.
	require.False(t, appErrors.IsRetryable(err))
	require.Contains(t, appErr.Message, "already enrolled in this subject")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollOnePerSemesterViolation(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	expectEligibilityPass(mock)
	expectSubjectLock(mock, 3, testSemester)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subjects SET available_seats = available_seats - 1 WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO enrollments`)).
		WithArgs(sqlmock.AnyArg(), testStudent, testSubject, testSemester, models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "one_subject_per_semester"})
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.False(t, appErrors.IsRetryable(err))
	require.Contains(t, appErr.Message, "one subject per semester")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollSemesterMismatch(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	expectEligibilityPass(mock)
	expectSubjectLock(mock, 3, "sem-other")
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollActiveCourseConflict(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT s.name AS subject_name, s.code AS subject_code, sem.name AS semester_name`)).
		WithArgs(testStudent, "CS101", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"subject_name", "subject_code", "semester_name"}).
			AddRow("Intro to CS", "CS101", "Fall 2025"))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrEligibility.Code, appErr.Code)
	require.Contains(t, appErr.Message, "Fall 2025")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollCompletedCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSubjectLookup(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT s.name AS subject_name, s.code AS subject_code, sem.name AS semester_name`)).
		WithArgs(testStudent, "CS101", models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM enrollment_history eh`)).
		WithArgs(testStudent, "CS101").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrEligibility.Code, appErr.Code)
	require.Contains(t, appErr.Message, "already completed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollSubjectNotFound(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT code, name FROM subjects WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), testStudent, testSubject, testSemester)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdraw(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	enrolledAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, student_id, subject_id, semester_id, status, enrolled_at FROM enrollments`)).
		WithArgs("enr-1", testStudent, models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "subject_id", "semester_id", "status", "enrolled_at"}).
			AddRow("enr-1", testStudent, testSubject, testSemester, models.EnrollmentStatusActive, enrolledAt))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subjects SET available_seats = available_seats + 1 WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE enrollments SET status = $1 WHERE id = $2`)).
		WithArgs(models.EnrollmentStatusDropped, "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Withdraw(context.Background(), "enr-1", testStudent)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusDropped, enrollment.Status)
	require.Equal(t, testSubject, enrollment.SubjectID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdrawAlreadyDropped(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, student_id, subject_id, semester_id, status, enrolled_at FROM enrollments`)).
		WithArgs("enr-1", testStudent, models.EnrollmentStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Withdraw(context.Background(), "enr-1", testStudent)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	require.Contains(t, appErr.Message, "already dropped")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListActiveByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "semester_id", "status", "enrolled_at",
		"subject_name", "subject_code", "subject_description",
		"semester_name", "semester_start", "semester_end",
	}).AddRow("enr-1", testStudent, testSubject, testSemester, models.EnrollmentStatusActive, now,
		"Intro to CS", "CS101", "Fundamentals", "Fall 2025", now, now.AddDate(0, 4, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM enrollments e`)).
		WithArgs(testStudent, models.EnrollmentStatusActive).
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveByStudent(context.Background(), testStudent)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "CS101", enrollments[0].SubjectCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRoster(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	roll := "R-1001"
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "semester_id", "status", "enrolled_at",
		"full_name", "email", "roll_number",
	}).AddRow("enr-1", testStudent, testSubject, testSemester, models.EnrollmentStatusActive, now,
		"Ada Lovelace", "ada@example.com", roll)
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN users u ON u.id = e.student_id`)).
		WithArgs(testSubject, models.EnrollmentStatusActive).
		WillReturnRows(rows)

	entries, err := repo.Roster(context.Background(), testSubject)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Ada Lovelace", entries[0].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCheckEligibilityPasses(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT code, name FROM subjects WHERE id = $1`)).
		WithArgs(testSubject).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("CS101", "Intro to CS"))
	expectEligibilityPass(mock)

	err := repo.CheckEligibility(context.Background(), testStudent, testSubject, testSemester)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
