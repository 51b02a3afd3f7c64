package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptGraded     AttemptStatus = "graded"
)

// OptionOrder maps a question id to the permutation of its option indices
// chosen for one attempt. It is stored as jsonb alongside the attempt so the
// same student sees the same order on every read of that attempt.
type OptionOrder map[uint][]int

// The partial unique index idx_attempt_one_active is what enforces "at most
// one in_progress attempt per (quiz, student)" under concurrent starts: row
// locks cannot block the insert of a row that does not exist yet, so the
// second of two racing starts fails the index and resumes the winner's row.
type QuizAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index:idx_attempt_quiz_student;index:idx_attempt_one_active,unique,where:status = 'in_progress'"`
	StudentID     string        `json:"student_id" gorm:"not null;index:idx_attempt_quiz_student;index:idx_attempt_one_active,unique,where:status = 'in_progress';size:255"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index;size:20"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`

	// Scoring; nil until graded.
	Score            *float64 `json:"score"`
	PointsEarned     int      `json:"points_earned"`
	PointsTotal      int      `json:"points_total"`
	TimeTakenSeconds *int     `json:"time_taken_seconds"`

	IPAddress *string `json:"ip_address" gorm:"size:45"`

	// Presentation order frozen at attempt creation.
	QuestionOrder datatypes.JSONSlice[uint]      `json:"question_order" gorm:"type:jsonb"`
	OptionOrders  datatypes.JSONType[OptionOrder] `json:"option_orders" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Quiz    Quiz            `json:"-" gorm:"foreignKey:QuizID"`
	Answers []AttemptAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// TimeLimitExceeded reports whether the quiz time limit has elapsed for this
// attempt. A nil limit never expires.
func (a *QuizAttempt) TimeLimitExceeded(limitMinutes *int, now time.Time) bool {
	if limitMinutes == nil {
		return false
	}
	return now.Sub(a.StartedAt) > time.Duration(*limitMinutes)*time.Minute
}

// AttemptAnswer is keyed by (attempt, question); saving again overwrites.
type AttemptAnswer struct {
	AttemptID  uint `json:"attempt_id" gorm:"primaryKey"`
	QuestionID uint `json:"question_id" gorm:"primaryKey"`

	AnswerText string `json:"answer_text" gorm:"type:text"`

	// Grading results; nil until the owning attempt is graded.
	IsCorrect     *bool `json:"is_correct"`
	PointsAwarded *int  `json:"points_awarded"`

	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`
}

func (AttemptAnswer) TableName() string {
	return "quiz_attempt_answers"
}
