package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlms/quiz-service/internal/events"
	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/openlms/quiz-service/internal/utils"
	"gorm.io/datatypes"
)

type attemptService struct {
	repo      repositories.Repository
	courses   CourseService
	publisher events.EventPublisher
	shuffle   *ShuffleEngine
	logger    *slog.Logger
	validator *utils.Validator
}

func NewAttemptService(
	repo repositories.Repository,
	courses CourseService,
	publisher events.EventPublisher,
	shuffle *ShuffleEngine,
	logger *slog.Logger,
	validator *utils.Validator,
) AttemptService {
	return &attemptService{
		repo:      repo,
		courses:   courses,
		publisher: publisher,
		shuffle:   shuffle,
		logger:    logger,
		validator: validator,
	}
}

// ===== START =====

// Start validates eligibility and either resumes the student's in_progress
// attempt or creates a new one with a frozen presentation order.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, principal models.Principal) (*AttemptDetail, error) {
	s.logger.Info("Starting quiz attempt",
		"quiz_id", req.QuizID,
		"student_id", principal.ID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	now := time.Now()

	// Eligibility, checked in order; each failure is distinct.
	if !quiz.IsPublished {
		return nil, ErrQuizNotPublished
	}
	if quiz.AvailableFrom != nil && now.Before(*quiz.AvailableFrom) {
		return nil, ErrQuizNotYetAvailable
	}
	if quiz.DueDate != nil && !now.Before(*quiz.DueDate) {
		return nil, ErrQuizClosed
	}
	enrolled, err := s.courses.IsEnrolled(ctx, principal.ID, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	txRepo, err := s.repo.(repositories.TransactionRepository).Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			txRepo.(repositories.TransactionRepository).Rollback(ctx)
		}
	}()

	// Idempotent re-entry: an in_progress attempt is returned unchanged.
	active, err := txRepo.Attempt().GetActiveAttempt(ctx, quiz.ID, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if active != nil {
		if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		s.logger.Info("Resuming existing attempt", "attempt_id", active.ID)
		return s.buildAttemptDetail(ctx, quiz, active)
	}

	count, err := txRepo.Attempt().CountByStudent(ctx, quiz.ID, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if quiz.MaxAttempts > 0 && int(count) >= quiz.MaxAttempts {
		err = ErrAttemptsExhausted
		return nil, err
	}

	attempt := &models.QuizAttempt{
		QuizID:        quiz.ID,
		StudentID:     principal.ID,
		AttemptNumber: int(count) + 1,
		Status:        models.AttemptInProgress,
		StartedAt:     now,
	}
	if req.ClientIP != "" {
		ip := req.ClientIP
		attempt.IPAddress = &ip
	}

	s.freezePresentationOrder(quiz, attempt)

	if err = txRepo.Attempt().Create(ctx, attempt); err != nil {
		if repositories.IsDuplicateKeyError(err) {
			// A concurrent start won the insert race on the active-attempt
			// unique index. Our transaction rolls back; resume the winner's
			// attempt so both callers land on the same row.
			winner, lookupErr := s.repo.Attempt().GetActiveAttempt(ctx, quiz.ID, principal.ID)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to load concurrently started attempt: %w", lookupErr)
			}
			if winner == nil {
				return nil, fmt.Errorf("failed to create attempt: %w", err)
			}
			s.logger.Info("Resuming concurrently started attempt", "attempt_id", winner.ID)
			return s.buildAttemptDetail(ctx, quiz, winner)
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Quiz attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quiz.ID,
		"student_id", principal.ID,
		"attempt_number", attempt.AttemptNumber)

	s.publishAsync(events.NewAttemptStartedEvent(
		attempt.ID, quiz.ID, quiz.Title, principal.ID,
		attempt.AttemptNumber, attempt.StartedAt, quiz.TimeLimitMinutes))

	return s.buildAttemptDetail(ctx, quiz, attempt)
}

// ===== SAVE ANSWER =====

// SaveAnswer upserts the answer for one question of an in_progress attempt.
// Grading never happens here; a re-save overwrites the previous text. The
// status check and the write share one transaction with the attempt row
// locked, so a save racing a submit either lands before grading or is
// rejected - it can never touch a graded answer.
func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, principal models.Principal) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	txRepo, err := s.repo.(repositories.TransactionRepository).Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			txRepo.(repositories.TransactionRepository).Rollback(ctx)
		}
	}()

	attempt, err := s.getOwnedAttempt(ctx, txRepo, attemptID, principal, "save_answer")
	if err != nil {
		return err
	}

	if attempt.Status != models.AttemptInProgress {
		err = ErrAlreadySubmitted
		return err
	}

	quiz, err := txRepo.Quiz().GetByID(ctx, attempt.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			err = ErrQuizNotFound
			return err
		}
		return fmt.Errorf("failed to get quiz: %w", err)
	}

	// The attempt stays in_progress past the limit; it just stops accepting
	// writes. There is no background force-submit.
	if attempt.TimeLimitExceeded(quiz.TimeLimitMinutes, time.Now()) {
		err = ErrTimeLimitExceeded
		return err
	}

	question, err := txRepo.Question().GetByID(ctx, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			err = ErrQuestionNotFound
			return err
		}
		return fmt.Errorf("failed to get question: %w", err)
	}
	if question.QuizID != attempt.QuizID {
		err = ErrQuestionNotFound
		return err
	}

	answer := &models.AttemptAnswer{
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		AnswerText: req.AnswerText,
		AnsweredAt: time.Now(),
	}
	if err = txRepo.Answer().Upsert(ctx, answer); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Answer saved",
		"attempt_id", attempt.ID,
		"question_id", question.ID)

	return nil
}

// ===== SUBMIT =====

// Submit grades every question of the quiz, finalizes the attempt and emits
// an attempt.graded event. The in_progress -> graded transition happens
// exactly once; a concurrent second submit fails with ErrAlreadySubmitted.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, principal models.Principal) (*SubmitResult, error) {
	s.logger.Info("Submitting quiz attempt",
		"attempt_id", attemptID,
		"student_id", principal.ID)

	txRepo, err := s.repo.(repositories.TransactionRepository).Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			txRepo.(repositories.TransactionRepository).Rollback(ctx)
		}
	}()

	// Locked read: a submit and a save on the same attempt serialize here,
	// so the answers read below are exactly the set that gets graded.
	attempt, err := s.getOwnedAttempt(ctx, txRepo, attemptID, principal, "submit")
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptInProgress {
		err = ErrAlreadySubmitted
		return nil, err
	}

	quiz, err := txRepo.Quiz().GetByIDWithQuestions(ctx, attempt.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			err = ErrQuizNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	saved, err := txRepo.Answer().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	graded, pointsEarned, pointsTotal := gradeAttempt(quiz.Questions, attempt.ID, saved)

	now := time.Now()
	score := 0.0
	if pointsTotal > 0 {
		score = 100 * float64(pointsEarned) / float64(pointsTotal)
	}
	timeTaken := int(now.Sub(attempt.StartedAt).Seconds())

	attempt.Status = models.AttemptGraded
	attempt.SubmittedAt = &now
	attempt.Score = &score
	attempt.PointsEarned = pointsEarned
	attempt.PointsTotal = pointsTotal
	attempt.TimeTakenSeconds = &timeTaken

	if err = txRepo.Answer().SaveGrades(ctx, graded); err != nil {
		return nil, fmt.Errorf("failed to persist grades: %w", err)
	}

	var transitioned bool
	transitioned, err = txRepo.Attempt().FinalizeGrading(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}
	if !transitioned {
		err = ErrAlreadySubmitted
		return nil, err
	}

	if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	passed := score >= float64(quiz.PassingScore)

	s.logger.Info("Quiz attempt graded",
		"attempt_id", attempt.ID,
		"score", score,
		"points_earned", pointsEarned,
		"points_total", pointsTotal,
		"passed", passed)

	// Fire-and-forget; a publish failure never affects the committed grade.
	s.publishAsync(events.NewAttemptGradedEvent(
		attempt.ID, quiz.ID, quiz.CourseID, quiz.Title, attempt.StudentID,
		now, score, pointsEarned, pointsTotal, passed))

	return &SubmitResult{Attempt: attempt, Passed: passed}, nil
}

// ===== RESULTS =====

func (s *attemptService) GetResults(ctx context.Context, attemptID uint, principal models.Principal) (*AttemptResults, error) {
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, attempt.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	isInstructor := false
	if !principal.IsAdmin() {
		isInstructor, err = s.courses.IsCourseInstructor(ctx, principal.ID, quiz.CourseID)
		if err != nil {
			return nil, err
		}
	}

	if err := ResultsVisibility(quiz, attempt, principal, isInstructor, time.Now()); err != nil {
		return nil, err
	}

	return buildAttemptResults(quiz, attempt), nil
}

// ListByQuiz is the instructor view over a quiz's attempts. Students only
// ever see their own rows.
func (s *attemptService) ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, principal models.Principal) ([]*models.QuizAttempt, int64, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrQuizNotFound
		}
		return nil, 0, fmt.Errorf("failed to get quiz: %w", err)
	}

	if principal.Role == models.RoleStudent {
		filters.StudentID = &principal.ID
	} else if !principal.IsAdmin() {
		isInstructor, err := s.courses.IsCourseInstructor(ctx, principal.ID, quiz.CourseID)
		if err != nil {
			return nil, 0, err
		}
		if !isInstructor {
			return nil, 0, NewPermissionError(principal.ID, quizID, "quiz", "list_attempts", "not the course instructor")
		}
	}

	attempts, total, err := s.repo.Attempt().ListByQuiz(ctx, quizID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

// ===== INTERNAL =====

// getOwnedAttempt loads an attempt and checks ownership. Passing a
// transaction-scoped repo additionally locks the attempt row.
func (s *attemptService) getOwnedAttempt(ctx context.Context, repo repositories.Repository, attemptID uint, principal models.Principal, action string) (*models.QuizAttempt, error) {
	attempt, err := repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != principal.ID {
		return nil, NewPermissionError(principal.ID, attemptID, "attempt", action, "not owned by student")
	}
	return attempt, nil
}

// freezePresentationOrder computes the question and option permutations for
// a new attempt and stores them on the attempt row, so later reads replay
// the same order instead of reshuffling.
func (s *attemptService) freezePresentationOrder(quiz *models.Quiz, attempt *models.QuizAttempt) {
	questionPerm := s.shuffle.Permutation(len(quiz.Questions), quiz.ShuffleQuestions)

	order := make([]uint, len(quiz.Questions))
	optionOrders := models.OptionOrder{}
	for pos, idx := range questionPerm {
		question := quiz.Questions[idx]
		order[pos] = question.ID
		if len(question.Options) > 0 {
			optionOrders[question.ID] = s.shuffle.Permutation(len(question.Options), quiz.ShuffleOptions)
		}
	}

	attempt.QuestionOrder = datatypes.NewJSONSlice(order)
	attempt.OptionOrders = datatypes.NewJSONType(optionOrders)
}

func (s *attemptService) publishAsync(event *events.NotificationEvent) {
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
