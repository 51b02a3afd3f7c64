package services

import (
	"time"

	"github.com/openlms/quiz-service/internal/models"
)

// ResultsVisibility decides whether viewer may see the graded details
// (per-question correctness and explanations) of an attempt.
//
// The course instructor and admins always may, regardless of policy. The
// owning student is gated by the quiz's show-results policy: after_submit
// permits once graded, after_due_date additionally waits for the due date
// (a nil due date is treated as already passed), never blocks outright.
// Everyone else is forbidden.
func ResultsVisibility(quiz *models.Quiz, attempt *models.QuizAttempt, viewer models.Principal, isInstructor bool, now time.Time) error {
	if viewer.IsAdmin() || isInstructor {
		return nil
	}

	if attempt.StudentID != viewer.ID {
		return ErrForbidden
	}

	if attempt.Status != models.AttemptGraded {
		return ErrResultsNotVisible
	}

	switch quiz.ShowResults {
	case models.ShowResultsAfterSubmit:
		return nil
	case models.ShowResultsAfterDueDate:
		if quiz.DueDate == nil || !now.Before(*quiz.DueDate) {
			return nil
		}
		return ErrResultsNotVisible
	case models.ShowResultsNever:
		return ErrResultsNotVisible
	default:
		return ErrResultsNotVisible
	}
}
