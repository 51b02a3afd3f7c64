package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of notification events
type EventType string

const (
	// Quiz lifecycle events
	EventQuizPublished EventType = "quiz.published"
	EventQuizDeleted   EventType = "quiz.deleted"

	// Attempt events
	EventAttemptStarted EventType = "attempt.started"
	EventAttemptGraded  EventType = "attempt.graded"
)

// NotificationEvent is the base event structure for all notification events
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type QuizPublishedEvent struct {
	QuizID    uint       `json:"quiz_id"`
	CourseID  uint       `json:"course_id"`
	QuizTitle string     `json:"quiz_title"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatorID string     `json:"creator_id"`
}

type QuizDeletedEvent struct {
	QuizID    uint   `json:"quiz_id"`
	CourseID  uint   `json:"course_id"`
	QuizTitle string `json:"quiz_title"`
	DeletedBy string `json:"deleted_by"`
}

type AttemptStartedEvent struct {
	AttemptID        uint      `json:"attempt_id"`
	QuizID           uint      `json:"quiz_id"`
	QuizTitle        string    `json:"quiz_title"`
	StudentID        string    `json:"student_id"`
	AttemptNumber    int       `json:"attempt_number"`
	StartedAt        time.Time `json:"started_at"`
	TimeLimitMinutes *int      `json:"time_limit_minutes,omitempty"`
}

// AttemptGradedEvent is consumed by the notification service to deliver the
// quiz result to the student. Delivery is decoupled from the submit
// transaction; a consumer failure never reaches the attempt engine.
type AttemptGradedEvent struct {
	AttemptID    uint      `json:"attempt_id"`
	QuizID       uint      `json:"quiz_id"`
	CourseID     uint      `json:"course_id"`
	QuizTitle    string    `json:"quiz_title"`
	StudentID    string    `json:"student_id"`
	GradedAt     time.Time `json:"graded_at"`
	Score        float64   `json:"score"`
	PointsEarned int       `json:"points_earned"`
	PointsTotal  int       `json:"points_total"`
	Passed       bool      `json:"passed"`
}

// Event factory functions

func NewQuizPublishedEvent(quizID, courseID uint, title string, dueDate *time.Time, creatorID string) *NotificationEvent {
	return newEvent(EventQuizPublished, QuizPublishedEvent{
		QuizID:    quizID,
		CourseID:  courseID,
		QuizTitle: title,
		DueDate:   dueDate,
		CreatorID: creatorID,
	})
}

func NewQuizDeletedEvent(quizID, courseID uint, title, deletedBy string) *NotificationEvent {
	return newEvent(EventQuizDeleted, QuizDeletedEvent{
		QuizID:    quizID,
		CourseID:  courseID,
		QuizTitle: title,
		DeletedBy: deletedBy,
	})
}

func NewAttemptStartedEvent(attemptID, quizID uint, title, studentID string, attemptNumber int, startedAt time.Time, timeLimitMinutes *int) *NotificationEvent {
	return newEvent(EventAttemptStarted, AttemptStartedEvent{
		AttemptID:        attemptID,
		QuizID:           quizID,
		QuizTitle:        title,
		StudentID:        studentID,
		AttemptNumber:    attemptNumber,
		StartedAt:        startedAt,
		TimeLimitMinutes: timeLimitMinutes,
	})
}

func NewAttemptGradedEvent(attemptID, quizID, courseID uint, title, studentID string, gradedAt time.Time, score float64, pointsEarned, pointsTotal int, passed bool) *NotificationEvent {
	return newEvent(EventAttemptGraded, AttemptGradedEvent{
		AttemptID:    attemptID,
		QuizID:       quizID,
		CourseID:     courseID,
		QuizTitle:    title,
		StudentID:    studentID,
		GradedAt:     gradedAt,
		Score:        score,
		PointsEarned: pointsEarned,
		PointsTotal:  pointsTotal,
		Passed:       passed,
	})
}

func newEvent(eventType EventType, data interface{}) *NotificationEvent {
	return &NotificationEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "quiz-service",
		Version:   "1.0",
		Data:      data,
	}
}
