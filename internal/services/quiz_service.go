package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlms/quiz-service/internal/cache"
	"github.com/openlms/quiz-service/internal/events"
	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/openlms/quiz-service/internal/utils"
)

const quizCacheTTL = 5 * time.Minute

type quizService struct {
	repo      repositories.Repository
	courses   CourseService
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *utils.Validator
}

func NewQuizService(
	repo repositories.Repository,
	courses CourseService,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *utils.Validator,
) QuizService {
	return &quizService{
		repo:      repo,
		courses:   courses,
		cache:     cacheService,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, principal models.Principal) (*models.Quiz, error) {
	s.logger.Info("Creating quiz",
		"course_id", req.CourseID,
		"created_by", principal.ID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.requireCourseManager(ctx, principal, req.CourseID, 0, "create"); err != nil {
		return nil, err
	}

	showResults := req.ShowResults
	if showResults == "" {
		showResults = models.ShowResultsAfterSubmit
	}

	quiz := &models.Quiz{
		CourseID:         req.CourseID,
		ModuleID:         req.ModuleID,
		Title:            req.Title,
		Description:      req.Description,
		Instructions:     req.Instructions,
		TimeLimitMinutes: req.TimeLimitMinutes,
		MaxAttempts:      req.MaxAttempts,
		PassingScore:     req.PassingScore,
		ShuffleQuestions: req.ShuffleQuestions,
		ShuffleOptions:   req.ShuffleOptions,
		ShowResults:      showResults,
		DueDate:          req.DueDate,
		AvailableFrom:    req.AvailableFrom,
		CreatedBy:        principal.ID,
	}

	if err := s.repo.Quiz().Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("Quiz created", "quiz_id", quiz.ID, "title", quiz.Title)
	return quiz, nil
}

// GetByID returns the quiz without its questions. Unpublished quizzes are
// hidden from students as if they did not exist.
func (s *quizService) GetByID(ctx context.Context, id uint, principal models.Principal) (*models.Quiz, error) {
	quiz, err := s.getCached(ctx, id)
	if err != nil {
		return nil, err
	}

	if !quiz.IsPublished {
		if err := s.requireCourseManager(ctx, principal, quiz.CourseID, id, "read"); err != nil {
			return nil, ErrQuizNotFound
		}
	}

	return quiz, nil
}

// GetByIDWithQuestions includes the full question list with correct answers
// and is therefore restricted to course staff. Students receive questions
// through the attempt flow, which withholds answers.
func (s *quizService) GetByIDWithQuestions(ctx context.Context, id uint, principal models.Principal) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	if err := s.requireCourseManager(ctx, principal, quiz.CourseID, id, "read_questions"); err != nil {
		return nil, err
	}

	return quiz, nil
}

func (s *quizService) Update(ctx context.Context, id uint, req *UpdateQuizRequest, principal models.Principal) (*models.Quiz, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	quiz, err := s.getForManage(ctx, id, principal, "update")
	if err != nil {
		return nil, err
	}

	if err := s.requireEditable(ctx, quiz); err != nil {
		return nil, err
	}

	applyQuizUpdate(quiz, req)

	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}

	s.invalidate(ctx, quiz.ID)
	s.logger.Info("Quiz updated", "quiz_id", quiz.ID)
	return quiz, nil
}

func (s *quizService) Delete(ctx context.Context, id uint, principal models.Principal) error {
	quiz, err := s.getForManage(ctx, id, principal, "delete")
	if err != nil {
		return err
	}

	if err := s.repo.Quiz().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}

	s.invalidate(ctx, id)
	s.logger.Info("Quiz deleted", "quiz_id", id, "deleted_by", principal.ID)

	s.publishAsync(events.NewQuizDeletedEvent(quiz.ID, quiz.CourseID, quiz.Title, principal.ID))
	return nil
}

// Publish makes the quiz visible and startable. Publishing an already
// published quiz is a no-op. A quiz with no questions cannot be published.
func (s *quizService) Publish(ctx context.Context, id uint, principal models.Principal) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	if err := s.requireCourseManager(ctx, principal, quiz.CourseID, id, "publish"); err != nil {
		return nil, err
	}

	if quiz.IsPublished {
		return quiz, nil
	}

	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", ErrValidationFailed)
	}

	quiz.IsPublished = true
	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to publish quiz: %w", err)
	}

	s.invalidate(ctx, quiz.ID)
	s.logger.Info("Quiz published", "quiz_id", quiz.ID, "course_id", quiz.CourseID)

	s.publishAsync(events.NewQuizPublishedEvent(quiz.ID, quiz.CourseID, quiz.Title, quiz.DueDate, quiz.CreatedBy))
	return quiz, nil
}

// List applies role-based narrowing on top of the caller's filters: students
// only ever see published quizzes.
func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters, principal models.Principal) ([]*models.Quiz, int64, error) {
	if principal.Role == models.RoleStudent {
		published := true
		filters.IsPublished = &published
	}

	quizzes, total, err := s.repo.Quiz().List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quizzes: %w", err)
	}

	return quizzes, total, nil
}

// ===== INTERNAL =====

func (s *quizService) getForManage(ctx context.Context, id uint, principal models.Principal, action string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if err := s.requireCourseManager(ctx, principal, quiz.CourseID, id, action); err != nil {
		return nil, err
	}
	return quiz, nil
}

func (s *quizService) requireCourseManager(ctx context.Context, principal models.Principal, courseID, quizID uint, action string) error {
	if principal.IsAdmin() {
		return nil
	}
	isInstructor, err := s.courses.IsCourseInstructor(ctx, principal.ID, courseID)
	if err != nil {
		return err
	}
	if !isInstructor {
		return NewPermissionError(principal.ID, quizID, "quiz", action, "not the course instructor")
	}
	return nil
}

// requireEditable blocks structural edits once a published quiz has attempts,
// so graded work cannot be invalidated retroactively.
func (s *quizService) requireEditable(ctx context.Context, quiz *models.Quiz) error {
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

func (s *quizService) getCached(ctx context.Context, id uint) (*models.Quiz, error) {
	var cached models.Quiz
	if err := s.cache.Get(ctx, quizCacheKey(id), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Quiz cache read failed", "quiz_id", id, "error", err)
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	if err := s.cache.Set(ctx, quizCacheKey(id), quiz, quizCacheTTL); err != nil {
		s.logger.Warn("Quiz cache write failed", "quiz_id", id, "error", err)
	}

	return quiz, nil
}

func (s *quizService) invalidate(ctx context.Context, id uint) {
	if err := s.cache.Delete(ctx, quizCacheKey(id)); err != nil {
		s.logger.Warn("Quiz cache invalidation failed", "quiz_id", id, "error", err)
	}
}

func (s *quizService) publishAsync(event *events.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishNotificationEvent(ctx, event); err != nil {
			s.logger.Error("Failed to publish notification event",
				"event_type", event.Type,
				"event_id", event.ID,
				"error", err)
		}
	}()
}

func quizCacheKey(id uint) string {
	return fmt.Sprintf("quiz:%d", id)
}

func applyQuizUpdate(quiz *models.Quiz, req *UpdateQuizRequest) {
	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = req.Description
	}
	if req.Instructions != nil {
		quiz.Instructions = req.Instructions
	}
	if req.TimeLimitMinutes != nil {
		quiz.TimeLimitMinutes = req.TimeLimitMinutes
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScore != nil {
		quiz.PassingScore = *req.PassingScore
	}
	if req.ShuffleQuestions != nil {
		quiz.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		quiz.ShuffleOptions = *req.ShuffleOptions
	}
	if req.ShowResults != nil {
		quiz.ShowResults = *req.ShowResults
	}
	if req.DueDate != nil {
		quiz.DueDate = req.DueDate
	}
	if req.AvailableFrom != nil {
		quiz.AvailableFrom = req.AvailableFrom
	}
}
