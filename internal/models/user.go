package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
	RoleAdmin      UserRole = "admin"
)

// Principal is the authenticated caller of a service operation. It is built
// once at the HTTP boundary and passed explicitly; services never read
// identity from ambient request state.
type Principal struct {
	ID   string   `json:"id" validate:"required"`
	Role UserRole `json:"role" validate:"required,user_role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type User struct {
	ID       string   `json:"id" gorm:"primaryKey;size:255"`
	FullName string   `json:"full_name" gorm:"not null;size:100"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role     UserRole `json:"role" gorm:"not null;size:20"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// Enrollment links a user to a course, either as an enrolled student or as
// the course's instructor. The quiz engine only ever asks membership
// questions of it; enrollment management itself lives in another service.
type Enrollment struct {
	ID       uint     `json:"id" gorm:"primaryKey"`
	CourseID uint     `json:"course_id" gorm:"not null;uniqueIndex:idx_enrollment_course_user"`
	UserID   string   `json:"user_id" gorm:"not null;uniqueIndex:idx_enrollment_course_user;size:255"`
	Role     UserRole `json:"role" gorm:"not null;size:20"`

	CreatedAt time.Time `json:"created_at"`
}

func (Enrollment) TableName() string {
	return "course_enrollments"
}
