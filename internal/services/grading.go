package services

import (
	"strings"

	"github.com/openlms/quiz-service/internal/models"
)

// GradeAnswer compares a submitted answer against the question's canonical
// answer. It is deterministic and pure: both sides are normalized (trimmed,
// lower-cased) and compared per question type.
//
// multiple_choice and true_false require exact equality. short_answer and
// fill_in_blank additionally accept a submission that is a substring of the
// canonical answer; this is deliberately lenient and matches the grading
// policy the product shipped with. Unknown types fall back to exact
// equality. An empty submission is never correct.
func GradeAnswer(questionType models.QuestionType, submitted, canonical string) bool {
	sub := normalizeAnswer(submitted)
	can := normalizeAnswer(canonical)

	if sub == "" {
		return false
	}

	switch questionType {
	case models.ShortAnswer, models.FillInBlank:
		return sub == can || strings.Contains(can, sub)
	default:
		return sub == can
	}
}

// AwardPoints returns the question's full point value for a correct answer
// and zero otherwise. There is no partial credit.
func AwardPoints(question *models.Question, correct bool) int {
	if correct {
		return question.Points
	}
	return 0
}

func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
