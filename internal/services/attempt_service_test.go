package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openlms/quiz-service/internal/events"
	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/openlms/quiz-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ===== MOCKS =====

type MockQuizRepository struct {
	mock.Mock
}

func (m *MockQuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	args := m.Called(ctx, quiz)
	return args.Error(0)
}

func (m *MockQuizRepository) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizRepository) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Quiz, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quiz), args.Error(1)
}

func (m *MockQuizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	args := m.Called(ctx, quiz)
	return args.Error(0)
}

func (m *MockQuizRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQuizRepository) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.Quiz), args.Get(1).(int64), args.Error(2)
}

type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) Create(ctx context.Context, question *models.Question) error {
	args := m.Called(ctx, question)
	return args.Error(0)
}

func (m *MockQuestionRepository) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) GetByQuiz(ctx context.Context, quizID uint) ([]*models.Question, error) {
	args := m.Called(ctx, quizID)
	return args.Get(0).([]*models.Question), args.Error(1)
}

func (m *MockQuestionRepository) Update(ctx context.Context, question *models.Question) error {
	args := m.Called(ctx, question)
	return args.Error(0)
}

func (m *MockQuestionRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQuestionRepository) NextOrderIndex(ctx context.Context, quizID uint) (int, error) {
	args := m.Called(ctx, quizID)
	return args.Int(0), args.Error(1)
}

func (m *MockQuestionRepository) Reorder(ctx context.Context, quizID uint, questionIDs []uint) error {
	args := m.Called(ctx, quizID, questionIDs)
	return args.Error(0)
}

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizAttempt), args.Error(1)
}

func (m *MockAttemptRepository) GetByIDWithAnswers(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizAttempt), args.Error(1)
}

func (m *MockAttemptRepository) Update(ctx context.Context, attempt *models.QuizAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetActiveAttempt(ctx context.Context, quizID uint, studentID string) (*models.QuizAttempt, error) {
	args := m.Called(ctx, quizID, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuizAttempt), args.Error(1)
}

func (m *MockAttemptRepository) CountByStudent(ctx context.Context, quizID uint, studentID string) (int64, error) {
	args := m.Called(ctx, quizID, studentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttemptRepository) ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	args := m.Called(ctx, quizID, filters)
	return args.Get(0).([]*models.QuizAttempt), args.Get(1).(int64), args.Error(2)
}

func (m *MockAttemptRepository) FinalizeGrading(ctx context.Context, attempt *models.QuizAttempt) (bool, error) {
	args := m.Called(ctx, attempt)
	return args.Bool(0), args.Error(1)
}

type MockAnswerRepository struct {
	mock.Mock
}

func (m *MockAnswerRepository) Upsert(ctx context.Context, answer *models.AttemptAnswer) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

func (m *MockAnswerRepository) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.AttemptAnswer, error) {
	args := m.Called(ctx, attemptID)
	return args.Get(0).([]*models.AttemptAnswer), args.Error(1)
}

func (m *MockAnswerRepository) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.AttemptAnswer, error) {
	args := m.Called(ctx, attemptID, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AttemptAnswer), args.Error(1)
}

func (m *MockAnswerRepository) SaveGrades(ctx context.Context, answers []*models.AttemptAnswer) error {
	args := m.Called(ctx, answers)
	return args.Error(0)
}

type MockEnrollmentRepository struct {
	mock.Mock
}

func (m *MockEnrollmentRepository) IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrollmentRepository) IsCourseInstructor(ctx context.Context, userID string, courseID uint) (bool, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Bool(0), args.Error(1)
}

// mockRepository aggregates the entity mocks and acts as its own
// transaction handle; commits and rollbacks are counted, not mocked.
type mockRepository struct {
	quiz       *MockQuizRepository
	question   *MockQuestionRepository
	attempt    *MockAttemptRepository
	answer     *MockAnswerRepository
	enrollment *MockEnrollmentRepository

	commits   int
	rollbacks int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		quiz:       &MockQuizRepository{},
		question:   &MockQuestionRepository{},
		attempt:    &MockAttemptRepository{},
		answer:     &MockAnswerRepository{},
		enrollment: &MockEnrollmentRepository{},
	}
}

func (m *mockRepository) Quiz() repositories.QuizRepository             { return m.quiz }
func (m *mockRepository) Question() repositories.QuestionRepository    { return m.question }
func (m *mockRepository) Attempt() repositories.AttemptRepository      { return m.attempt }
func (m *mockRepository) Answer() repositories.AnswerRepository        { return m.answer }
func (m *mockRepository) Enrollment() repositories.EnrollmentRepository { return m.enrollment }

func (m *mockRepository) Begin(ctx context.Context) (repositories.Repository, error) {
	return m, nil
}

func (m *mockRepository) Commit(ctx context.Context) error {
	m.commits++
	return nil
}

func (m *mockRepository) Rollback(ctx context.Context) error {
	m.rollbacks++
	return nil
}

type MockCourseService struct {
	mock.Mock
}

func (m *MockCourseService) IsEnrolled(ctx context.Context, studentID string, courseID uint) (bool, error) {
	args := m.Called(ctx, studentID, courseID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCourseService) IsCourseInstructor(ctx context.Context, userID string, courseID uint) (bool, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Bool(0), args.Error(1)
}

// ===== FIXTURES =====

var (
	student    = models.Principal{ID: "student-1", Role: models.RoleStudent}
	otherStudent = models.Principal{ID: "student-2", Role: models.RoleStudent}
)

func newTestAttemptService(repo *mockRepository, courses CourseService, publisher events.EventPublisher) AttemptService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAttemptService(repo, courses, publisher, NewShuffleEngineWithSeed(1), logger, utils.NewValidator())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishedQuiz() *models.Quiz {
	passing := 70
	return &models.Quiz{
		ID:           10,
		CourseID:     5,
		Title:        "Biology Basics",
		MaxAttempts:  3,
		PassingScore: passing,
		IsPublished:  true,
		ShowResults:  models.ShowResultsAfterSubmit,
		Questions: []models.Question{
			{ID: 1, QuizID: 10, Type: models.MultipleChoice, QuestionText: "Powerhouse of the cell?", Options: []string{"Nucleus", "Mitochondria", "Ribosome"}, CorrectAnswer: "Mitochondria", Points: 1, OrderIndex: 0},
			{ID: 2, QuizID: 10, Type: models.TrueFalse, QuestionText: "Plants respire.", Options: []string{"True", "False"}, CorrectAnswer: "true", Points: 1, OrderIndex: 1},
			{ID: 3, QuizID: 10, Type: models.ShortAnswer, QuestionText: "Pigment used in photosynthesis?", CorrectAnswer: "chlorophyll", Points: 1, OrderIndex: 2},
			{ID: 4, QuizID: 10, Type: models.MultipleChoice, QuestionText: "Product of photosynthesis?", Options: []string{"Oxygen", "Nitrogen"}, CorrectAnswer: "Oxygen", Points: 1, OrderIndex: 3},
			{ID: 5, QuizID: 10, Type: models.FillInBlank, QuestionText: "Water enters through the ____.", CorrectAnswer: "roots", Points: 1, OrderIndex: 4},
		},
	}
}

// ===== START =====

func TestStart_CreatesAttemptWithFrozenOrder(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, courses, publisher)

	quiz := publishedQuiz()
	quiz.ShuffleQuestions = true
	quiz.ShuffleOptions = true

	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsEnrolled", mock.Anything, "student-1", uint(5)).Return(true, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, uint(10), "student-1").Return(nil, nil)
	repo.attempt.On("CountByStudent", mock.Anything, uint(10), "student-1").Return(int64(0), nil)
	repo.attempt.On("Create", mock.Anything, mock.AnythingOfType("*models.QuizAttempt")).Run(func(args mock.Arguments) {
		args.Get(1).(*models.QuizAttempt).ID = 100
	}).Return(nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{}, nil)

	detail, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 10}, student)

	require.NoError(t, err)
	assert.Equal(t, 1, detail.Attempt.AttemptNumber)
	assert.Equal(t, models.AttemptInProgress, detail.Attempt.Status)
	assert.Len(t, detail.Questions, 5)

	// The persisted question order is a permutation of the quiz's ids and
	// the presented questions follow it.
	seen := map[uint]bool{}
	for i, q := range detail.Questions {
		assert.Equal(t, []uint(detail.Attempt.QuestionOrder)[i], q.ID)
		assert.False(t, seen[q.ID])
		seen[q.ID] = true
		assert.Equal(t, i+1, q.Position)
	}
	assert.Len(t, seen, 5)

	// Options are permuted, never mutated: same multiset as authored.
	for _, q := range detail.Questions {
		if q.ID == 1 {
			assert.ElementsMatch(t, []string{"Nucleus", "Mitochondria", "Ribosome"}, q.Options)
		}
	}

	assert.Equal(t, 1, repo.commits)

	require.Eventually(t, func() bool {
		return len(publisher.GetPublishedEvents()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, events.EventAttemptStarted, publisher.GetPublishedEvents()[0].Type)
}

func TestStart_ResumesActiveAttempt(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, courses, publisher)

	quiz := publishedQuiz()
	existing := &models.QuizAttempt{
		ID:            100,
		QuizID:        10,
		StudentID:     "student-1",
		AttemptNumber: 1,
		Status:        models.AttemptInProgress,
		StartedAt:     time.Now().Add(-5 * time.Minute),
		QuestionOrder: []uint{3, 1, 5, 2, 4},
	}

	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsEnrolled", mock.Anything, "student-1", uint(5)).Return(true, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, uint(10), "student-1").Return(existing, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{
		{AttemptID: 100, QuestionID: 3, AnswerText: "chlorophyll"},
	}, nil)

	detail, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 10}, student)

	require.NoError(t, err)
	assert.Equal(t, uint(100), detail.Attempt.ID)
	assert.Equal(t, uint(3), detail.Questions[0].ID)
	assert.Equal(t, "chlorophyll", detail.Questions[0].SavedAnswer)
	assert.Equal(t, "", detail.Questions[1].SavedAnswer)

	repo.attempt.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestStart_PreconditionFailures(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name     string
		mutate   func(q *models.Quiz)
		enrolled bool
		wantErr  error
	}{
		{"not published", func(q *models.Quiz) { q.IsPublished = false }, true, ErrQuizNotPublished},
		{"not yet available", func(q *models.Quiz) { q.AvailableFrom = &future }, true, ErrQuizNotYetAvailable},
		{"past due date", func(q *models.Quiz) { q.DueDate = &past }, true, ErrQuizClosed},
		{"not enrolled", func(q *models.Quiz) {}, false, ErrNotEnrolled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			courses := &MockCourseService{}
			svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

			quiz := publishedQuiz()
			tt.mutate(quiz)

			repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
			courses.On("IsEnrolled", mock.Anything, "student-1", uint(5)).Return(tt.enrolled, nil)

			_, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 10}, student)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStart_QuizNotFound(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(99)).Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 99}, student)
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestStart_AttemptsExhausted(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz() // MaxAttempts: 3

	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsEnrolled", mock.Anything, "student-1", uint(5)).Return(true, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, uint(10), "student-1").Return(nil, nil)
	repo.attempt.On("CountByStudent", mock.Anything, uint(10), "student-1").Return(int64(3), nil)

	_, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 10}, student)

	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 1, repo.rollbacks)
	repo.attempt.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestStart_ZeroMaxAttemptsMeansUnlimited(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	quiz.MaxAttempts = 0

	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsEnrolled", mock.Anything, "student-1", uint(5)).Return(true, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, uint(10), "student-1").Return(nil, nil)
	repo.attempt.On("CountByStudent", mock.Anything, uint(10), "student-1").Return(int64(50), nil)
	repo.attempt.On("Create", mock.Anything, mock.AnythingOfType("*models.QuizAttempt")).Run(func(args mock.Arguments) {
		args.Get(1).(*models.QuizAttempt).ID = 101
	}).Return(nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(101)).Return([]*models.AttemptAnswer{}, nil)

	detail, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 10}, student)

	require.NoError(t, err)
	assert.Equal(t, 51, detail.Attempt.AttemptNumber)
}

// Two racing starts can both observe "no active attempt" before either row
// exists; the loser's insert then violates the active-attempt unique index
// and must resume the winner's attempt instead of erroring or duplicating.
func TestStart_ConcurrentStartLosesInsertRace(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, courses, publisher)

	quiz := publishedQuiz()
	winner := &models.QuizAttempt{
		ID:            100,
		QuizID:        10,
		StudentID:     "student-1",
		AttemptNumber: 1,
		Status:        models.AttemptInProgress,
		StartedAt:     time.Now(),
		QuestionOrder: []uint{1, 2, 3, 4, 5},
	}

	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsEnrolled", mock.Anything, "student-1", uint(5)).Return(true, nil)
	repo.attempt.On("GetActiveAttempt", mock.Anything, uint(10), "student-1").Return(nil, nil).Once()
	repo.attempt.On("CountByStudent", mock.Anything, uint(10), "student-1").Return(int64(0), nil)
	repo.attempt.On("Create", mock.Anything, mock.AnythingOfType("*models.QuizAttempt")).Return(gorm.ErrDuplicatedKey)
	repo.attempt.On("GetActiveAttempt", mock.Anything, uint(10), "student-1").Return(winner, nil).Once()
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{}, nil)

	detail, err := svc.Start(context.Background(), &StartAttemptRequest{QuizID: 10}, student)

	require.NoError(t, err)
	assert.Equal(t, uint(100), detail.Attempt.ID)
	assert.Equal(t, 1, detail.Attempt.AttemptNumber)

	// The losing transaction rolls back; no second attempt.started event.
	assert.Equal(t, 1, repo.rollbacks)
	assert.Equal(t, 0, repo.commits)
	assert.Empty(t, publisher.GetPublishedEvents())
}

// ===== SAVE ANSWER =====

func TestSaveAnswer_UpsertsAnswer(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()}
	quiz := publishedQuiz()

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByID", mock.Anything, uint(10)).Return(quiz, nil)
	repo.question.On("GetByID", mock.Anything, uint(3)).Return(&quiz.Questions[2], nil)
	repo.answer.On("Upsert", mock.Anything, mock.MatchedBy(func(a *models.AttemptAnswer) bool {
		return a.AttemptID == 100 && a.QuestionID == 3 && a.AnswerText == "chlorophyll"
	})).Return(nil)

	err := svc.SaveAnswer(context.Background(), 100, &SaveAnswerRequest{QuestionID: 3, AnswerText: "chlorophyll"}, student)
	assert.NoError(t, err)
	assert.Equal(t, 1, repo.commits)
	repo.answer.AssertExpectations(t)
}

func TestSaveAnswer_Failures(t *testing.T) {
	limit := 30
	startedLongAgo := time.Now().Add(-2 * time.Hour)

	tests := []struct {
		name      string
		attempt   *models.QuizAttempt
		principal models.Principal
		timeLimit *int
		wantErr   error
	}{
		{
			"not the owner",
			&models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()},
			otherStudent, nil, nil, // PermissionError asserted below
		},
		{
			"already graded",
			&models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptGraded, StartedAt: time.Now()},
			student, nil, ErrAlreadySubmitted,
		},
		{
			"time limit exceeded",
			&models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: startedLongAgo},
			student, &limit, ErrTimeLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

			quiz := publishedQuiz()
			quiz.TimeLimitMinutes = tt.timeLimit

			repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(tt.attempt, nil)
			repo.quiz.On("GetByID", mock.Anything, uint(10)).Return(quiz, nil)

			err := svc.SaveAnswer(context.Background(), 100, &SaveAnswerRequest{QuestionID: 3, AnswerText: "x"}, tt.principal)

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				var pe *PermissionError
				assert.ErrorAs(t, err, &pe)
			}
			repo.answer.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		})
	}
}

func TestSaveAnswer_QuestionFromAnotherQuiz(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()}
	foreign := &models.Question{ID: 77, QuizID: 999, Type: models.ShortAnswer, CorrectAnswer: "x", Points: 1}

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByID", mock.Anything, uint(10)).Return(publishedQuiz(), nil)
	repo.question.On("GetByID", mock.Anything, uint(77)).Return(foreign, nil)

	err := svc.SaveAnswer(context.Background(), 100, &SaveAnswerRequest{QuestionID: 77, AnswerText: "x"}, student)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

// A save racing a submit reads the attempt row under lock inside its own
// transaction; once the submit has graded the attempt, the save must roll
// back without writing instead of overwriting a graded answer row.
func TestSaveAnswer_RejectedWhenSubmitWinsRace(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	graded := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptGraded, StartedAt: time.Now()}
	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(graded, nil)

	err := svc.SaveAnswer(context.Background(), 100, &SaveAnswerRequest{QuestionID: 3, AnswerText: "late edit"}, student)

	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, 1, repo.rollbacks)
	assert.Equal(t, 0, repo.commits)
	repo.answer.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// ===== SUBMIT =====

func TestSubmit_GradesAndFinalizes(t *testing.T) {
	repo := newMockRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, &MockCourseService{}, publisher)

	quiz := publishedQuiz() // 5 questions, 1 point each, passing 70
	attempt := &models.QuizAttempt{
		ID:        100,
		QuizID:    10,
		StudentID: "student-1",
		Status:    models.AttemptInProgress,
		StartedAt: time.Now().Add(-10 * time.Minute),
	}

	// 4 of 5 correct: 80%.
	saved := []*models.AttemptAnswer{
		{AttemptID: 100, QuestionID: 1, AnswerText: "mitochondria"},
		{AttemptID: 100, QuestionID: 2, AnswerText: "true"},
		{AttemptID: 100, QuestionID: 3, AnswerText: "Chlorophyll"},
		{AttemptID: 100, QuestionID: 4, AnswerText: "Nitrogen"},
		{AttemptID: 100, QuestionID: 5, AnswerText: "roots"},
	}

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return(saved, nil)
	repo.answer.On("SaveGrades", mock.Anything, mock.AnythingOfType("[]*models.AttemptAnswer")).Return(nil)
	repo.attempt.On("FinalizeGrading", mock.Anything, mock.AnythingOfType("*models.QuizAttempt")).Return(true, nil)

	result, err := svc.Submit(context.Background(), 100, student)

	require.NoError(t, err)
	assert.Equal(t, models.AttemptGraded, result.Attempt.Status)
	require.NotNil(t, result.Attempt.Score)
	assert.InDelta(t, 80.0, *result.Attempt.Score, 0.001)
	assert.Equal(t, 4, result.Attempt.PointsEarned)
	assert.Equal(t, 5, result.Attempt.PointsTotal)
	assert.True(t, result.Passed)
	require.NotNil(t, result.Attempt.SubmittedAt)
	require.NotNil(t, result.Attempt.TimeTakenSeconds)
	assert.GreaterOrEqual(t, *result.Attempt.TimeTakenSeconds, 600-5)
	assert.Equal(t, 1, repo.commits)

	require.Eventually(t, func() bool {
		return len(publisher.GetPublishedEvents()) == 1
	}, time.Second, 10*time.Millisecond)

	event := publisher.GetPublishedEvents()[0]
	assert.Equal(t, events.EventAttemptGraded, event.Type)
	payload := event.Data.(events.AttemptGradedEvent)
	assert.Equal(t, uint(100), payload.AttemptID)
	assert.True(t, payload.Passed)
}

func TestSubmit_UnansweredQuestionsScoreZero(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()}

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{}, nil)
	repo.answer.On("SaveGrades", mock.Anything, mock.AnythingOfType("[]*models.AttemptAnswer")).Return(nil)
	repo.attempt.On("FinalizeGrading", mock.Anything, mock.AnythingOfType("*models.QuizAttempt")).Return(true, nil)

	result, err := svc.Submit(context.Background(), 100, student)

	require.NoError(t, err)
	assert.Equal(t, 0.0, *result.Attempt.Score)
	assert.Equal(t, 0, result.Attempt.PointsEarned)
	assert.Equal(t, 5, result.Attempt.PointsTotal)
	assert.False(t, result.Passed)
}

func TestSubmit_AlreadyGraded(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptGraded, StartedAt: time.Now()}
	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)

	_, err := svc.Submit(context.Background(), 100, student)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmit_ConcurrentSubmitLosesCompareAndSet(t *testing.T) {
	repo := newMockRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	svc := newTestAttemptService(repo, &MockCourseService{}, publisher)

	quiz := publishedQuiz()
	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()}

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{}, nil)
	repo.answer.On("SaveGrades", mock.Anything, mock.Anything).Return(nil)
	// Another submit won the race between the status read and the update.
	repo.attempt.On("FinalizeGrading", mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.Submit(context.Background(), 100, student)

	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Equal(t, 1, repo.rollbacks)
	assert.Equal(t, 0, repo.commits)
	assert.Empty(t, publisher.GetPublishedEvents())
}

func TestSubmit_NotOwner(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()}
	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)

	_, err := svc.Submit(context.Background(), 100, otherStudent)

	var pe *PermissionError
	assert.ErrorAs(t, err, &pe)
}

func TestSubmit_PublishFailureDoesNotFailSubmit(t *testing.T) {
	repo := newMockRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	publisher.FailWith = errors.New("kafka unreachable")
	svc := newTestAttemptService(repo, &MockCourseService{}, publisher)

	quiz := publishedQuiz()
	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now()}

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{}, nil)
	repo.answer.On("SaveGrades", mock.Anything, mock.Anything).Return(nil)
	repo.attempt.On("FinalizeGrading", mock.Anything, mock.Anything).Return(true, nil)

	result, err := svc.Submit(context.Background(), 100, student)

	require.NoError(t, err)
	assert.Equal(t, models.AttemptGraded, result.Attempt.Status)
	assert.Equal(t, 1, repo.commits)
}

// Late submits grade normally; the time limit only blocks new answers.
func TestSubmit_AfterTimeLimitStillGrades(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	limit := 30
	quiz := publishedQuiz()
	quiz.TimeLimitMinutes = &limit
	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptInProgress, StartedAt: time.Now().Add(-2 * time.Hour)}

	repo.attempt.On("GetByID", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	repo.answer.On("GetByAttempt", mock.Anything, uint(100)).Return([]*models.AttemptAnswer{
		{AttemptID: 100, QuestionID: 1, AnswerText: "Mitochondria"},
	}, nil)
	repo.answer.On("SaveGrades", mock.Anything, mock.Anything).Return(nil)
	repo.attempt.On("FinalizeGrading", mock.Anything, mock.Anything).Return(true, nil)

	result, err := svc.Submit(context.Background(), 100, student)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempt.PointsEarned)
}

// ===== RESULTS =====

func TestGetResults_OwnerAfterSubmit(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	score := 80.0
	correct := true
	one := 1
	attempt := &models.QuizAttempt{
		ID:            100,
		QuizID:        10,
		StudentID:     "student-1",
		Status:        models.AttemptGraded,
		Score:         &score,
		PointsEarned:  4,
		PointsTotal:   5,
		QuestionOrder: []uint{5, 4, 3, 2, 1},
		Answers: []models.AttemptAnswer{
			{AttemptID: 100, QuestionID: 1, AnswerText: "mitochondria", IsCorrect: &correct, PointsAwarded: &one},
		},
	}

	repo.attempt.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsCourseInstructor", mock.Anything, "student-1", uint(5)).Return(false, nil)

	results, err := svc.GetResults(context.Background(), 100, student)

	require.NoError(t, err)
	assert.True(t, results.Passed)
	require.Len(t, results.Questions, 5)

	// Frozen order replayed on review.
	assert.Equal(t, uint(5), results.Questions[0].QuestionID)
	assert.Equal(t, uint(1), results.Questions[4].QuestionID)

	// Correct answers and grading detail are included.
	assert.Equal(t, "Mitochondria", results.Questions[4].CorrectAnswer)
	assert.True(t, results.Questions[4].IsCorrect)
	assert.Equal(t, 1, results.Questions[4].PointsAwarded)
	assert.Equal(t, "mitochondria", results.Questions[4].SubmittedAnswer)

	// Unanswered question shows as incorrect with zero points.
	assert.False(t, results.Questions[0].IsCorrect)
	assert.Equal(t, 0, results.Questions[0].PointsAwarded)
}

func TestGetResults_PolicyNeverBlocksOwner(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	quiz.ShowResults = models.ShowResultsNever
	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptGraded}

	repo.attempt.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsCourseInstructor", mock.Anything, "student-1", uint(5)).Return(false, nil)

	_, err := svc.GetResults(context.Background(), 100, student)
	assert.ErrorIs(t, err, ErrResultsNotVisible)
}

func TestGetResults_InstructorBypassesPolicy(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	quiz.ShowResults = models.ShowResultsNever
	attempt := &models.QuizAttempt{ID: 100, QuizID: 10, StudentID: "student-1", Status: models.AttemptGraded}

	repo.attempt.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(attempt, nil)
	repo.quiz.On("GetByIDWithQuestions", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsCourseInstructor", mock.Anything, "teacher-1", uint(5)).Return(true, nil)

	instructor := models.Principal{ID: "teacher-1", Role: models.RoleInstructor}
	results, err := svc.GetResults(context.Background(), 100, instructor)

	require.NoError(t, err)
	assert.Len(t, results.Questions, 5)
}

// ===== LIST =====

func TestListByQuiz_StudentSeesOnlyOwnAttempts(t *testing.T) {
	repo := newMockRepository()
	svc := newTestAttemptService(repo, &MockCourseService{}, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	repo.quiz.On("GetByID", mock.Anything, uint(10)).Return(quiz, nil)
	repo.attempt.On("ListByQuiz", mock.Anything, uint(10), mock.MatchedBy(func(f repositories.AttemptFilters) bool {
		return f.StudentID != nil && *f.StudentID == "student-1"
	})).Return([]*models.QuizAttempt{}, int64(0), nil)

	_, _, err := svc.ListByQuiz(context.Background(), 10, repositories.AttemptFilters{}, student)

	assert.NoError(t, err)
	repo.attempt.AssertExpectations(t)
}

func TestListByQuiz_NonInstructorForbidden(t *testing.T) {
	repo := newMockRepository()
	courses := &MockCourseService{}
	svc := newTestAttemptService(repo, courses, events.NewMockEventPublisher(testLogger()))

	quiz := publishedQuiz()
	repo.quiz.On("GetByID", mock.Anything, uint(10)).Return(quiz, nil)
	courses.On("IsCourseInstructor", mock.Anything, "teacher-2", uint(5)).Return(false, nil)

	outsider := models.Principal{ID: "teacher-2", Role: models.RoleInstructor}
	_, _, err := svc.ListByQuiz(context.Background(), 10, repositories.AttemptFilters{}, outsider)

	var pe *PermissionError
	assert.ErrorAs(t, err, &pe)
}
