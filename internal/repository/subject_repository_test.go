package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/campus-systems/enroll-api/internal/models"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

func subjectColumns() []string {
	return []string{"id", "name", "code", "description", "semester_id", "total_seats", "available_seats", "created_by", "created_at", "updated_at"}
}

func subjectRow(totalSeats, availableSeats int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(subjectColumns()).
		AddRow("subj-1", "Intro to CS", "CS101", "Fundamentals", "sem-1", totalSeats, availableSeats, "teacher-1", now, now)
}

func TestSubjectRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subjects`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	subject := &models.Subject{Name: "Intro to CS", Code: "CS101", SemesterID: "sem-1", TotalSeats: 30, CreatedBy: "teacher-1"}
	err := repo.Create(context.Background(), subject)
	require.NoError(t, err)
	require.NotEmpty(t, subject.ID)
	require.Equal(t, 30, subject.AvailableSeats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCreateDuplicateCode(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subjects`)).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintSubjectCode})

	err := repo.Create(context.Background(), &models.Subject{Name: "Intro to CS", Code: "CS101", SemesterID: "sem-1", TotalSeats: 30})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Contains(t, appErr.Message, "already exists")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryUpdateResize(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	// 30 total, 10 available: 20 enrolled. Resizing to 25 leaves 5 seats.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subjects WHERE id = $1 FOR UPDATE`)).
		WithArgs("subj-1").
		WillReturnRows(subjectRow(30, 10))
	newTotal := 25
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE subjects SET`)).
		WithArgs(nil, nil, 25, 5, "subj-1").
		WillReturnRows(subjectRow(25, 5))
	mock.ExpectCommit()

	updated, err := repo.Update(context.Background(), "subj-1", SubjectUpdateParams{TotalSeats: &newTotal})
	require.NoError(t, err)
	require.Equal(t, 25, updated.TotalSeats)
	require.Equal(t, 5, updated.AvailableSeats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryUpdateRejectsShrinkBelowEnrolled(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subjects WHERE id = $1 FOR UPDATE`)).
		WithArgs("subj-1").
		WillReturnRows(subjectRow(30, 10))
	mock.ExpectRollback()

	newTotal := 15
	_, err := repo.Update(context.Background(), "subj-1", SubjectUpdateParams{TotalSeats: &newTotal})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Contains(t, appErr.Message, "enrolled count (20)")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListCatalog(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	now := time.Now().UTC()
	columns := append(subjectColumns(),
		"semester_name", "semester_active", "enrolled_count",
		"already_enrolled", "already_completed", "already_taken_course", "enrolled_in_semester")
	rows := sqlmock.NewRows(columns).
		AddRow("subj-1", "Intro to CS", "CS101", "Fundamentals", "sem-1", 30, 12, "teacher-1", now, now,
			"Fall 2025", true, 18, false, false, false, true)
	mock.ExpectQuery(regexp.QuoteMeta(`AS enrolled_in_semester`)).
		WithArgs("stu-1", "sem-1").
		WillReturnRows(rows)

	subjects, err := repo.ListCatalog(context.Background(), "stu-1", "sem-1")
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	require.True(t, subjects[0].EnrolledInSemester)
	require.False(t, subjects[0].AlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}
