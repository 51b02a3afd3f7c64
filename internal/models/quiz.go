package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ShowResultsPolicy string

const (
	ShowResultsAfterSubmit  ShowResultsPolicy = "after_submit"
	ShowResultsAfterDueDate ShowResultsPolicy = "after_due_date"
	ShowResultsNever        ShowResultsPolicy = "never"
)

type Quiz struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	CourseID     uint    `json:"course_id" gorm:"not null;index" validate:"required"`
	ModuleID     *uint   `json:"module_id" gorm:"index"`
	Title        string  `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description  *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	Instructions *string `json:"instructions" gorm:"type:text" validate:"omitempty,max=5000"`

	// TimeLimitMinutes nil means unlimited; MaxAttempts 0 means unlimited.
	TimeLimitMinutes *int `json:"time_limit_minutes" validate:"omitempty,min=1,max=600"`
	MaxAttempts      int  `json:"max_attempts" gorm:"default:0" validate:"min=0,max=100"`
	PassingScore     int  `json:"passing_score" gorm:"not null" validate:"min=0,max=100"`

	ShuffleQuestions bool              `json:"shuffle_questions" gorm:"default:false"`
	ShuffleOptions   bool              `json:"shuffle_options" gorm:"default:false"`
	ShowResults      ShowResultsPolicy `json:"show_results" gorm:"default:after_submit;size:20" validate:"omitempty,results_policy"`

	DueDate       *time.Time `json:"due_date"`
	AvailableFrom *time.Time `json:"available_from"`
	IsPublished   bool       `json:"is_published" gorm:"default:false;index"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Questions []Question    `json:"questions,omitempty" gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE"`
	Attempts  []QuizAttempt `json:"-" gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// AvailableAt reports whether the quiz can be taken at the given instant.
// Unpublished quizzes are never available.
func (q *Quiz) AvailableAt(now time.Time) bool {
	if !q.IsPublished {
		return false
	}
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.DueDate != nil && !now.Before(*q.DueDate) {
		return false
	}
	return true
}

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	FillInBlank    QuestionType = "fill_in_blank"
)

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	QuizID uint         `json:"quiz_id" gorm:"not null;index"`
	Type   QuestionType `json:"question_type" gorm:"not null;size:30" validate:"required,question_type"`

	QuestionText string `json:"question_text" gorm:"not null;type:text" validate:"required,min=1"`

	// Options is only meaningful for multiple_choice and true_false; it is an
	// ordered list in memory and a jsonb column in storage.
	Options datatypes.JSONSlice[string] `json:"options" gorm:"type:jsonb"`

	CorrectAnswer string  `json:"correct_answer" gorm:"not null;type:text" validate:"required"`
	Explanation   *string `json:"explanation" gorm:"type:text"`
	Points        int     `json:"points" gorm:"not null;default:1" validate:"required,min=1"`
	OrderIndex    int     `json:"order_index" gorm:"not null;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "quiz_questions"
}
