package postgres

import (
	"context"

	"github.com/openlms/quiz-service/internal/models"
	"github.com/openlms/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

type EnrollmentPostgreSQL struct {
	db *gorm.DB
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{db: db}
}

func (e *EnrollmentPostgreSQL) IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error) {
	var count int64
	err := e.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND user_id = ? AND role = ?", courseID, userID, models.RoleStudent).
		Count(&count).Error
	return count > 0, err
}

func (e *EnrollmentPostgreSQL) IsCourseInstructor(ctx context.Context, userID string, courseID uint) (bool, error) {
	var count int64
	err := e.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND user_id = ? AND role = ?", courseID, userID, models.RoleInstructor).
		Count(&count).Error
	return count > 0, err
}
