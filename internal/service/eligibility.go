package service

import (
	"context"

	"go.uber.org/zap"
)

type eligibilityReader interface {
	CheckEligibility(ctx context.Context, studentID, subjectID, semesterID string) error
}

// EligibilityChecker evaluates the business-rule preconditions for an
// enrollment: no repeat of an active or completed course, and at most
// one subject per semester. It reads without taking locks, so a passing
// verdict can be stale by the time the seat allocator runs; the
// allocator re-verifies everything inside its transaction. Removing this
// pre-check would not break correctness, only push rejections to commit
// time.
type EligibilityChecker struct {
	repo   eligibilityReader
	logger *zap.Logger
}

// NewEligibilityChecker constructs the checker.
func NewEligibilityChecker(repo eligibilityReader, logger *zap.Logger) *EligibilityChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityChecker{repo: repo, logger: logger}
}

// Check returns nil when the student may attempt to enroll, or a typed
// eligibility error naming the conflicting enrollment.
func (c *EligibilityChecker) Check(ctx context.Context, studentID, subjectID, semesterID string) error {
	err := c.repo.CheckEligibility(ctx, studentID, subjectID, semesterID)
	if err != nil {
		c.logger.Debug("eligibility pre-check rejected",
			zap.String("student_id", studentID),
			zap.String("subject_id", subjectID),
			zap.Error(err))
	}
	return err
}
