package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/openlms/quiz-service/internal/utils"
)

type questionService struct {
	repo      repositories.Repository
	courses   CourseService
	logger    *slog.Logger
	validator *utils.Validator
}

func NewQuestionService(
	repo repositories.Repository,
	courses CourseService,
	logger *slog.Logger,
	validator *utils.Validator,
) QuestionService {
	return &questionService{
		repo:      repo,
		courses:   courses,
		logger:    logger,
		validator: validator,
	}
}

func (s *questionService) Create(ctx context.Context, quizID uint, req *CreateQuestionRequest, principal models.Principal) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := validateQuestionShape(req.Type, req.Options, req.CorrectAnswer); err != nil {
		return nil, err
	}

	quiz, err := s.getManagedQuiz(ctx, quizID, principal, "add_question")
	if err != nil {
		return nil, err
	}
	if err := s.requireEditable(ctx, quiz); err != nil {
		return nil, err
	}

	orderIndex, err := s.repo.Question().NextOrderIndex(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute order index: %w", err)
	}

	question := &models.Question{
		QuizID:        quizID,
		Type:          req.Type,
		QuestionText:  req.QuestionText,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Explanation:   req.Explanation,
		Points:        req.Points,
		OrderIndex:    orderIndex,
	}

	if err := s.repo.Question().Create(ctx, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("Question created",
		"question_id", question.ID,
		"quiz_id", quizID,
		"type", question.Type)
	return question, nil
}

func (s *questionService) Update(ctx context.Context, id uint, req *UpdateQuestionRequest, principal models.Principal) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	question, quiz, err := s.getManagedQuestion(ctx, id, principal, "update_question")
	if err != nil {
		return nil, err
	}
	if err := s.requireEditable(ctx, quiz); err != nil {
		return nil, err
	}

	if req.QuestionText != nil {
		question.QuestionText = *req.QuestionText
	}
	if req.Options != nil {
		question.Options = req.Options
	}
	if req.CorrectAnswer != nil {
		question.CorrectAnswer = *req.CorrectAnswer
	}
	if req.Explanation != nil {
		question.Explanation = req.Explanation
	}
	if req.Points != nil {
		question.Points = *req.Points
	}

	if err := validateQuestionShape(question.Type, question.Options, question.CorrectAnswer); err != nil {
		return nil, err
	}

	if err := s.repo.Question().Update(ctx, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	s.logger.Info("Question updated", "question_id", question.ID, "quiz_id", question.QuizID)
	return question, nil
}

func (s *questionService) Delete(ctx context.Context, id uint, principal models.Principal) error {
	question, quiz, err := s.getManagedQuestion(ctx, id, principal, "delete_question")
	if err != nil {
		return err
	}
	if err := s.requireEditable(ctx, quiz); err != nil {
		return err
	}

	if err := s.repo.Question().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	s.logger.Info("Question deleted", "question_id", question.ID, "quiz_id", question.QuizID)
	return nil
}

// Reorder rewrites the authoring order of the quiz's questions. questionIDs
// must be exactly the quiz's question ids.
func (s *questionService) Reorder(ctx context.Context, quizID uint, questionIDs []uint, principal models.Principal) error {
	if len(questionIDs) == 0 {
		return fmt.Errorf("%w: question ids are required", ErrValidationFailed)
	}

	quiz, err := s.getManagedQuiz(ctx, quizID, principal, "reorder_questions")
	if err != nil {
		return err
	}
	if err := s.requireEditable(ctx, quiz); err != nil {
		return err
	}

	if err := s.repo.Question().Reorder(ctx, quizID, questionIDs); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to reorder questions: %w", err)
	}

	s.logger.Info("Questions reordered", "quiz_id", quizID, "count", len(questionIDs))
	return nil
}

// ===== INTERNAL =====

func (s *questionService) getManagedQuiz(ctx context.Context, quizID uint, principal models.Principal, action string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if !principal.IsAdmin() {
		isInstructor, err := s.courses.IsCourseInstructor(ctx, principal.ID, quiz.CourseID)
		if err != nil {
			return nil, err
		}
		if !isInstructor {
			return nil, NewPermissionError(principal.ID, quizID, "quiz", action, "not the course instructor")
		}
	}
	return quiz, nil
}

func (s *questionService) getManagedQuestion(ctx context.Context, id uint, principal models.Principal, action string) (*models.Question, *models.Quiz, error) {
	question, err := s.repo.Question().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrQuestionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get question: %w", err)
	}
	quiz, err := s.getManagedQuiz(ctx, question.QuizID, principal, action)
	if err != nil {
		return nil, nil, err
	}
	return question, quiz, nil
}

// requireEditable mirrors the quiz-level rule: once a published quiz has
// attempts, its questions are frozen.
func (s *questionService) requireEditable(ctx context.Context, quiz *models.Quiz) error {
	if !quiz.IsPublished {
		return nil
	}
	_, total, err := s.repo.Attempt().ListByQuiz(ctx, quiz.ID, repositories.AttemptFilters{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}
	if total > 0 {
		return ErrQuizNotEditable
	}
	return nil
}

// validateQuestionShape enforces the per-type structural rules the field
// validators cannot express.
func validateQuestionShape(qType models.QuestionType, options []string, correctAnswer string) error {
	switch qType {
	case models.MultipleChoice:
		if len(options) < 2 {
			return fmt.Errorf("%w: multiple_choice requires at least 2 options", ErrValidationFailed)
		}
		if !containsFold(options, correctAnswer) {
			return fmt.Errorf("%w: correct_answer must be one of the options", ErrValidationFailed)
		}
	case models.TrueFalse:
		can := normalizeAnswer(correctAnswer)
		if can != "true" && can != "false" {
			return fmt.Errorf("%w: true_false answer must be true or false", ErrValidationFailed)
		}
	}
	return nil
}

func containsFold(options []string, answer string) bool {
	can := normalizeAnswer(answer)
	for _, opt := range options {
		if normalizeAnswer(opt) == can {
			return true
		}
	}
	return false
}
