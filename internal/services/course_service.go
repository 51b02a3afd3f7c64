package services

import (
	"context"
	"fmt"

	"github.com/openlms/quiz-service/internal/repositories"
)

// courseService is the default CourseService, backed by the local
// enrollments table. Deployments that keep enrollment in a separate service
// swap in an RPC-backed implementation of the same interface.
type courseService struct {
	repo repositories.Repository
}

func NewCourseService(repo repositories.Repository) CourseService {
	return &courseService{repo: repo}
}

func (s *courseService) IsEnrolled(ctx context.Context, studentID string, courseID uint) (bool, error) {
	enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, studentID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return enrolled, nil
}

func (s *courseService) IsCourseInstructor(ctx context.Context, userID string, courseID uint) (bool, error) {
	instructor, err := s.repo.Enrollment().IsCourseInstructor(ctx, userID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to check instructor role: %w", err)
	}
	return instructor, nil
}
