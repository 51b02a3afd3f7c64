package repositories

import (
	"context"
	"errors"

	"github.com/openlms/quiz-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type QuizFilters struct {
	CourseID    *uint   `json:"course_id"`
	IsPublished *bool   `json:"is_published"`
	CreatedBy   *string `json:"created_by"`
	Limit       int     `json:"limit"`
	Offset      int     `json:"offset"`
	SortBy      string  `json:"sort_by"`    // "created_at", "title", "due_date"
	SortOrder   string  `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    models.AttemptStatus `json:"status"`
	StudentID *string              `json:"student_id"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`    // "started_at", "score", "attempt_number"
	SortOrder string               `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====

type QuizRepository interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	GetByID(ctx context.Context, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) error
	Delete(ctx context.Context, id uint) error // cascades questions, attempts, answers
	List(ctx context.Context, filters QuizFilters) ([]*models.Quiz, int64, error)
}

type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id uint) (*models.Question, error)
	GetByQuiz(ctx context.Context, quizID uint) ([]*models.Question, error) // ordered by order_index
	Update(ctx context.Context, question *models.Question) error
	Delete(ctx context.Context, id uint) error
	NextOrderIndex(ctx context.Context, quizID uint) (int, error)
	// Reorder rewrites order_index for the whole quiz so indexes stay dense.
	Reorder(ctx context.Context, quizID uint, questionIDs []uint) error
}

type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error)
	GetByIDWithAnswers(ctx context.Context, id uint) (*models.QuizAttempt, error)
	Update(ctx context.Context, attempt *models.QuizAttempt) error

	// GetActiveAttempt returns (nil, nil) when no in_progress attempt exists.
	// Inside a transaction an existing row is locked FOR UPDATE. That lock
	// cannot cover the no-row case, so uniqueness of the in_progress attempt
	// is guaranteed by the partial unique index on quiz_attempts; callers
	// creating attempts must handle IsDuplicateKeyError from Create.
	GetActiveAttempt(ctx context.Context, quizID uint, studentID string) (*models.QuizAttempt, error)
	CountByStudent(ctx context.Context, quizID uint, studentID string) (int64, error)
	ListByQuiz(ctx context.Context, quizID uint, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)

	// FinalizeGrading performs the in_progress -> graded transition as a
	// compare-and-set; it reports false when the attempt was already graded.
	FinalizeGrading(ctx context.Context, attempt *models.QuizAttempt) (bool, error)
}

type AnswerRepository interface {
	Upsert(ctx context.Context, answer *models.AttemptAnswer) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]*models.AttemptAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.AttemptAnswer, error)
	SaveGrades(ctx context.Context, answers []*models.AttemptAnswer) error
}

type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error)
	IsCourseInstructor(ctx context.Context, userID string, courseID uint) (bool, error)
}

// Repository aggregates all entity repositories behind one handle so services
// depend on a single constructor argument.
type Repository interface {
	Quiz() QuizRepository
	Question() QuestionRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository
	Enrollment() EnrollmentRepository
}

// TransactionRepository is implemented by repository handles that can open a
// transaction-scoped Repository.
type TransactionRepository interface {
	Repository
	Begin(ctx context.Context) (Repository, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IsNotFoundError reports whether err is the store's record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateKeyError reports whether err is a unique-constraint violation
// (requires TranslateError on the gorm config).
func IsDuplicateKeyError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
