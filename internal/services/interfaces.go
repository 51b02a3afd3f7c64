package services

import (
	"context"
	"time"

	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
)

// ===== COLLABORATOR INTERFACES =====

// CourseService answers membership questions about courses. Enrollment
// management itself belongs to the course service; the quiz engine only
// consumes this narrow surface.
type CourseService interface {
	IsEnrolled(ctx context.Context, studentID string, courseID uint) (bool, error)
	IsCourseInstructor(ctx context.Context, userID string, courseID uint) (bool, error)
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, principal models.Principal) (*AttemptDetail, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, principal models.Principal) error
	Submit(ctx context.Context, attemptID uint, principal models.Principal) (*SubmitResult, error)
	GetResults(ctx context.Context, attemptID uint, principal models.Principal) (*AttemptResults, error)
	ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, principal models.Principal) ([]*models.QuizAttempt, int64, error)
}

type QuizService interface {
	Create(ctx context.Context, req *CreateQuizRequest, principal models.Principal) (*models.Quiz, error)
	GetByID(ctx context.Context, id uint, principal models.Principal) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, id uint, principal models.Principal) (*models.Quiz, error)
	Update(ctx context.Context, id uint, req *UpdateQuizRequest, principal models.Principal) (*models.Quiz, error)
	Delete(ctx context.Context, id uint, principal models.Principal) error
	Publish(ctx context.Context, id uint, principal models.Principal) (*models.Quiz, error)
	List(ctx context.Context, filters repositories.QuizFilters, principal models.Principal) ([]*models.Quiz, int64, error)
}

type QuestionService interface {
	Create(ctx context.Context, quizID uint, req *CreateQuestionRequest, principal models.Principal) (*models.Question, error)
	Update(ctx context.Context, id uint, req *UpdateQuestionRequest, principal models.Principal) (*models.Question, error)
	Delete(ctx context.Context, id uint, principal models.Principal) error
	Reorder(ctx context.Context, quizID uint, questionIDs []uint, principal models.Principal) error
}

type ExportService interface {
	ExportQuizResults(ctx context.Context, quizID uint, principal models.Principal) ([]byte, error)
}

// ===== ATTEMPT DTOS =====

type StartAttemptRequest struct {
	QuizID   uint   `json:"quiz_id" validate:"required"`
	ClientIP string `json:"-"`
}

type SaveAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	AnswerText string `json:"answer_text"`
}

// QuestionForAttempt is a question as presented to the student mid-attempt:
// options already in the attempt's persisted display order, correct answer
// and explanation withheld.
type QuestionForAttempt struct {
	ID           uint                `json:"id"`
	Type         models.QuestionType `json:"question_type"`
	QuestionText string              `json:"question_text"`
	Options      []string            `json:"options,omitempty"`
	Points       int                 `json:"points"`
	Position     int                 `json:"position"`
	SavedAnswer  string              `json:"saved_answer"`
}

type AttemptDetail struct {
	Attempt   *models.QuizAttempt  `json:"attempt"`
	Questions []QuestionForAttempt `json:"questions"`
}

type SubmitResult struct {
	Attempt *models.QuizAttempt `json:"attempt"`
	Passed  bool                `json:"passed"`
}

type QuestionResult struct {
	QuestionID      uint                `json:"question_id"`
	Type            models.QuestionType `json:"question_type"`
	QuestionText    string              `json:"question_text"`
	SubmittedAnswer string              `json:"submitted_answer"`
	CorrectAnswer   string              `json:"correct_answer"`
	Explanation     *string             `json:"explanation,omitempty"`
	IsCorrect       bool                `json:"is_correct"`
	PointsAwarded   int                 `json:"points_awarded"`
	Points          int                 `json:"points"`
}

type AttemptResults struct {
	Attempt   *models.QuizAttempt `json:"attempt"`
	Passed    bool                `json:"passed"`
	Questions []QuestionResult    `json:"questions"`
}

// ===== CATALOG DTOS =====

type CreateQuizRequest struct {
	CourseID         uint                     `json:"course_id" validate:"required"`
	ModuleID         *uint                    `json:"module_id"`
	Title            string                   `json:"title" validate:"required,min=1,max=200"`
	Description      *string                  `json:"description" validate:"omitempty,max=2000"`
	Instructions     *string                  `json:"instructions" validate:"omitempty,max=5000"`
	TimeLimitMinutes *int                     `json:"time_limit_minutes" validate:"omitempty,min=1,max=600"`
	MaxAttempts      int                      `json:"max_attempts" validate:"min=0,max=100"`
	PassingScore     int                      `json:"passing_score" validate:"min=0,max=100"`
	ShuffleQuestions bool                     `json:"shuffle_questions"`
	ShuffleOptions   bool                     `json:"shuffle_options"`
	ShowResults      models.ShowResultsPolicy `json:"show_results" validate:"omitempty,results_policy"`
	DueDate          *time.Time               `json:"due_date"`
	AvailableFrom    *time.Time               `json:"available_from"`
}

type UpdateQuizRequest struct {
	Title            *string                   `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string                   `json:"description" validate:"omitempty,max=2000"`
	Instructions     *string                   `json:"instructions" validate:"omitempty,max=5000"`
	TimeLimitMinutes *int                      `json:"time_limit_minutes" validate:"omitempty,min=1,max=600"`
	MaxAttempts      *int                      `json:"max_attempts" validate:"omitempty,min=0,max=100"`
	PassingScore     *int                      `json:"passing_score" validate:"omitempty,min=0,max=100"`
	ShuffleQuestions *bool                     `json:"shuffle_questions"`
	ShuffleOptions   *bool                     `json:"shuffle_options"`
	ShowResults      *models.ShowResultsPolicy `json:"show_results" validate:"omitempty,results_policy"`
	DueDate          *time.Time                `json:"due_date"`
	AvailableFrom    *time.Time                `json:"available_from"`
}

type CreateQuestionRequest struct {
	Type          models.QuestionType `json:"question_type" validate:"required,question_type"`
	QuestionText  string              `json:"question_text" validate:"required,min=1"`
	Options       []string            `json:"options"`
	CorrectAnswer string              `json:"correct_answer" validate:"required"`
	Explanation   *string             `json:"explanation"`
	Points        int                 `json:"points" validate:"required,min=1"`
}

type UpdateQuestionRequest struct {
	QuestionText  *string  `json:"question_text" validate:"omitempty,min=1"`
	Options       []string `json:"options"`
	CorrectAnswer *string  `json:"correct_answer"`
	Explanation   *string  `json:"explanation"`
	Points        *int     `json:"points" validate:"omitempty,min=1"`
}
