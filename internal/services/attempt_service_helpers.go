package services

import (
	"context"
	"fmt"

	"github.com/openlms/quiz-service/internal/models"
)

// buildAttemptDetail assembles the student-facing view of an attempt:
// questions in the attempt's persisted order, options permuted per attempt,
// correct answers withheld, saved answers merged in.
func (s *attemptService) buildAttemptDetail(ctx context.Context, quiz *models.Quiz, attempt *models.QuizAttempt) (*AttemptDetail, error) {
	saved, err := s.repo.Answer().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	savedByQuestion := make(map[uint]string, len(saved))
	for _, a := range saved {
		savedByQuestion[a.QuestionID] = a.AnswerText
	}

	optionOrders := attempt.OptionOrders.Data()

	questions := make([]QuestionForAttempt, 0, len(quiz.Questions))
	for pos, q := range orderedQuestions(quiz.Questions, attempt.QuestionOrder) {
		questions = append(questions, QuestionForAttempt{
			ID:           q.ID,
			Type:         q.Type,
			QuestionText: q.QuestionText,
			Options:      applyPermutation(q.Options, optionOrders[q.ID]),
			Points:       q.Points,
			Position:     pos + 1,
			SavedAnswer:  savedByQuestion[q.ID],
		})
	}

	return &AttemptDetail{Attempt: attempt, Questions: questions}, nil
}

// buildAttemptResults assembles the full review of a graded attempt,
// including correct answers and explanations. Visibility is the caller's
// responsibility. Expects attempt.Answers preloaded.
func buildAttemptResults(quiz *models.Quiz, attempt *models.QuizAttempt) *AttemptResults {
	answersByQuestion := make(map[uint]*models.AttemptAnswer, len(attempt.Answers))
	for i := range attempt.Answers {
		answersByQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	results := make([]QuestionResult, 0, len(quiz.Questions))
	for _, q := range orderedQuestions(quiz.Questions, attempt.QuestionOrder) {
		result := QuestionResult{
			QuestionID:    q.ID,
			Type:          q.Type,
			QuestionText:  q.QuestionText,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Points:        q.Points,
		}
		if a, ok := answersByQuestion[q.ID]; ok {
			result.SubmittedAnswer = a.AnswerText
			if a.IsCorrect != nil {
				result.IsCorrect = *a.IsCorrect
			}
			if a.PointsAwarded != nil {
				result.PointsAwarded = *a.PointsAwarded
			}
		}
		results = append(results, result)
	}

	passed := false
	if attempt.Score != nil {
		passed = *attempt.Score >= float64(quiz.PassingScore)
	}

	return &AttemptResults{Attempt: attempt, Passed: passed, Questions: results}
}

// gradeAttempt grades every saved answer against its question and totals the
// points. Unanswered questions count toward the total but earn nothing and
// get no stored row. Saved answers for questions since removed from the quiz
// are skipped.
func gradeAttempt(questions []models.Question, attemptID uint, saved []*models.AttemptAnswer) ([]*models.AttemptAnswer, int, int) {
	savedByQuestion := make(map[uint]*models.AttemptAnswer, len(saved))
	for _, a := range saved {
		savedByQuestion[a.QuestionID] = a
	}

	graded := make([]*models.AttemptAnswer, 0, len(saved))
	pointsEarned, pointsTotal := 0, 0

	for i := range questions {
		q := &questions[i]
		pointsTotal += q.Points

		a, ok := savedByQuestion[q.ID]
		if !ok {
			continue
		}

		correct := GradeAnswer(q.Type, a.AnswerText, q.CorrectAnswer)
		awarded := AwardPoints(q, correct)
		pointsEarned += awarded

		a.AttemptID = attemptID
		a.IsCorrect = &correct
		a.PointsAwarded = &awarded
		graded = append(graded, a)
	}

	return graded, pointsEarned, pointsTotal
}

// orderedQuestions returns the quiz's questions in the attempt's frozen
// display order. Questions added to the quiz after the attempt started are
// appended at the end in authoring order; ids that no longer exist are
// dropped.
func orderedQuestions(questions []models.Question, order []uint) []*models.Question {
	byID := make(map[uint]*models.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	out := make([]*models.Question, 0, len(questions))
	seen := make(map[uint]bool, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			out = append(out, q)
			seen[id] = true
		}
	}
	for i := range questions {
		if !seen[questions[i].ID] {
			out = append(out, &questions[i])
		}
	}
	return out
}
