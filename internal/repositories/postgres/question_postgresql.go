package postgres

import (
	"context"
	"fmt"

	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type QuestionPostgreSQL struct {
	db *gorm.DB
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db}
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, question *models.Question) error {
	return q.db.WithContext(ctx).Create(question).Error
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	var question models.Question
	if err := q.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) GetByQuiz(ctx context.Context, quizID uint) ([]*models.Question, error) {
	var questions []*models.Question
	if err := q.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("order_index ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, question *models.Question) error {
	return q.db.WithContext(ctx).Save(question).Error
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, id uint) error {
	return q.db.WithContext(ctx).Delete(&models.Question{}, id).Error
}

func (q *QuestionPostgreSQL) NextOrderIndex(ctx context.Context, quizID uint) (int, error) {
	var count int64
	if err := q.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Reorder rewrites the whole order sequence so indexes remain dense and
// unique. questionIDs must contain every question of the quiz exactly once.
func (q *QuestionPostgreSQL) Reorder(ctx context.Context, quizID uint, questionIDs []uint) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Question{}).
			Where("quiz_id = ?", quizID).
			Count(&count).Error; err != nil {
			return err
		}
		if int(count) != len(questionIDs) {
			return fmt.Errorf("reorder requires all %d questions, got %d", count, len(questionIDs))
		}

		for index, questionID := range questionIDs {
			result := tx.Model(&models.Question{}).
				Where("id = ? AND quiz_id = ?", questionID, quizID).
				Update("order_index", index)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("question %d does not belong to quiz %d", questionID, quizID)
			}
		}
		return nil
	})
}
