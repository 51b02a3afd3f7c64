package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

type exportService struct {
	repo    repositories.Repository
	courses CourseService
	logger  *slog.Logger
}

func NewExportService(repo repositories.Repository, courses CourseService, logger *slog.Logger) ExportService {
	return &exportService{
		repo:    repo,
		courses: courses,
		logger:  logger,
	}
}

// ExportQuizResults produces an xlsx workbook with one row per attempt on
// the quiz. Instructor and admin only.
func (s *exportService) ExportQuizResults(ctx context.Context, quizID uint, principal models.Principal) ([]byte, error) {
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
			return nil, NewPermissionError(principal.ID, quizID, "quiz", "export_results", "not the course instructor")
		}
	}

	attempts, _, err := s.repo.Attempt().ListByQuiz(ctx, quizID, repositories.AttemptFilters{
		SortBy:    "started_at",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz attempts: %w", err)
	}

	f := excelize.NewFile()
	sheetName := "Results"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{
		"Student ID", "Attempt", "Status", "Started At", "Submitted At",
		"Score (%)", "Points Earned", "Points Total", "Passed", "Time Taken (minutes)",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, attempt := range attempts {
		row := attemptToExportRow(quiz, attempt)
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Quiz results exported",
		"quiz_id", quizID,
		"attempt_count", len(attempts),
		"exported_by", principal.ID)

	return buf.Bytes(), nil
}

func attemptToExportRow(quiz *models.Quiz, attempt *models.QuizAttempt) []interface{} {
	row := []interface{}{
		attempt.StudentID,
		attempt.AttemptNumber,
		string(attempt.Status),
	}

	row = append(row, attempt.StartedAt.Format("2006-01-02 15:04:05"))
	if attempt.SubmittedAt != nil {
		row = append(row, attempt.SubmittedAt.Format("2006-01-02 15:04:05"))
	} else {
		row = append(row, "")
	}

	if attempt.Score != nil {
		row = append(row, *attempt.Score)
	} else {
		row = append(row, "")
	}
	row = append(row, attempt.PointsEarned, attempt.PointsTotal)

	if attempt.Score != nil {
		if *attempt.Score >= float64(quiz.PassingScore) {
			row = append(row, "Pass")
		} else {
			row = append(row, "Fail")
		}
	} else {
		row = append(row, "")
	}

	if attempt.TimeTakenSeconds != nil {
		row = append(row, *attempt.TimeTakenSeconds/60)
	} else {
		row = append(row, "")
	}

	return row
}
