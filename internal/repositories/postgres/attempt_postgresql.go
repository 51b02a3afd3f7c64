package postgres

import (
	"context"
	"errors"

	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db   *gorm.DB
	inTx bool
}

func NewAttemptPostgreSQL(db *gorm.DB, inTx bool) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db, inTx: inTx}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.QuizAttempt) error {
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	query := a.db.WithContext(ctx)
	// Inside a transaction the row is locked so a save and a submit on the
	// same attempt serialize instead of interleaving.
	if a.inTx {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithAnswers(ctx context.Context, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := a.db.WithContext(ctx).
		Preload("Answers").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.QuizAttempt) error {
	return a.db.WithContext(ctx).Save(attempt).Error
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, quizID uint, studentID string) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	query := a.db.WithContext(ctx)
	// Lock an existing row inside a transaction. When no row exists yet the
	// lock protects nothing; the partial unique index on (quiz_id, student_id)
	// WHERE status = 'in_progress' is what stops two starts from both
	// inserting.
	if a.inTx {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.
		Where("quiz_id = ? AND student_id = ? AND status = ?", quizID, studentID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountByStudent(ctx context.Context, quizID uint, studentID string) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	var attempts []*models.QuizAttempt
	var total int64

	query := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ?", quizID)

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// FinalizeGrading writes the grading outcome with a compare-and-set on
// status, so only one Submit can take the attempt out of in_progress.
func (a *AttemptPostgreSQL) FinalizeGrading(ctx context.Context, attempt *models.QuizAttempt) (bool, error) {
	result := a.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":             models.AttemptGraded,
			"submitted_at":       attempt.SubmittedAt,
			"score":              attempt.Score,
			"points_earned":      attempt.PointsEarned,
			"points_total":       attempt.PointsTotal,
			"time_taken_seconds": attempt.TimeTakenSeconds,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
