package repository

import (
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

// Postgres error codes and constraint names the enrollment flow depends on.
const (
	pqSerializationFailure = pq.ErrorCode("40001")
	pqUniqueViolation      = pq.ErrorCode("23505")

	constraintStudentSubject = "enrollments_student_id_subject_id_key"
	constraintOnePerSemester = "one_subject_per_semester"
	constraintSemesterName   = "semesters_name_key"
	constraintSubjectCode    = "subjects_code_semester_id_key"
)

// translateConflict maps low-level Postgres conflict signals onto the
// typed error taxonomy. This is the only place in the codebase that
// inspects driver-specific error codes. A serialization failure means the
// isolation engine aborted one of two racing enrollments and the whole
// operation may be resubmitted; a unique violation means a constraint the
// eligibility pre-check could not guard (its reads run before any lock)
// fired at commit time, which is a permanent denial.
func translateConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case pqSerializationFailure:
		return appErrors.Clone(appErrors.ErrConflict, "")
	case pqUniqueViolation:
		switch pqErr.Constraint {
		case constraintStudentSubject:
			return permanentConflict("you are already enrolled in this subject")
		case constraintOnePerSemester:
			return permanentConflict("you can only enroll in one subject per semester")
		}
	}
	return err
}

// permanentConflict builds a non-retryable conflict outcome.
func permanentConflict(message string) *appErrors.Error {
	conflict := appErrors.Clone(appErrors.ErrConflict, message)
	conflict.Retryable = false
	return conflict
}

// isUniqueViolation reports whether err is a unique violation on the
// named constraint. Used by the CRUD repositories for friendly messages
// on duplicate semester names and subject codes.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
}
