package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

func TestTranslateConflictSerializationFailure(t *testing.T) {
	err := translateConflict(&pq.Error{Code: pqSerializationFailure})

	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.True(t, appErr.Retryable)
}

func TestTranslateConflictUniqueViolations(t *testing.T) {
	cases := []struct {
		name       string
		constraint string
		message    string
	}{
		{"duplicate subject", constraintStudentSubject, "already enrolled in this subject"},
		{"semester cap", constraintOnePerSemester, "one subject per semester"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := translateConflict(&pq.Error{Code: pqUniqueViolation, Constraint: tc.constraint})

			appErr := appErrors.FromError(err)
			require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
			require.False(t, appErr.Retryable)
			require.Contains(t, appErr.Message, tc.message)
		})
	}
}

func TestTranslateConflictPassesThroughUnknownErrors(t *testing.T) {
	sentinel := errors.New("connection reset")
	require.Equal(t, sentinel, translateConflict(sentinel))

	fk := &pq.Error{Code: "23503", Constraint: "enrollments_subject_id_fkey"}
	require.Equal(t, error(fk), translateConflict(fk))

	other := &pq.Error{Code: pqUniqueViolation, Constraint: "users_email_key"}
	require.Equal(t, error(other), translateConflict(other))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pq.Error{Code: pqUniqueViolation, Constraint: constraintSemesterName}
	require.True(t, isUniqueViolation(err, constraintSemesterName))
	require.False(t, isUniqueViolation(err, constraintSubjectCode))
	require.False(t, isUniqueViolation(errors.New("boom"), constraintSemesterName))
}
