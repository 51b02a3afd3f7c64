package postgres

import (
	"context"
	"errors"

	"github.com/openlms/quiz-service/internal/repositories"
	"gorm.io/gorm"
)

// Repository is the GORM-backed aggregate. A handle created by New wraps the
// shared *gorm.DB; Begin returns a handle bound to a transaction whose
// sub-repositories all run on that transaction.
type Repository struct {
	db   *gorm.DB
	inTx bool

	quiz       repositories.QuizRepository
	question   repositories.QuestionRepository
	attempt    repositories.AttemptRepository
	answer     repositories.AnswerRepository
	enrollment repositories.EnrollmentRepository
}

func New(db *gorm.DB) *Repository {
	return newRepository(db, false)
}

func newRepository(db *gorm.DB, inTx bool) *Repository {
	return &Repository{
		db:         db,
		inTx:       inTx,
		quiz:       NewQuizPostgreSQL(db),
		question:   NewQuestionPostgreSQL(db),
		attempt:    NewAttemptPostgreSQL(db, inTx),
		answer:     NewAnswerPostgreSQL(db),
		enrollment: NewEnrollmentPostgreSQL(db),
	}
}

func (r *Repository) Quiz() repositories.QuizRepository             { return r.quiz }
func (r *Repository) Question() repositories.QuestionRepository     { return r.question }
func (r *Repository) Attempt() repositories.AttemptRepository       { return r.attempt }
func (r *Repository) Answer() repositories.AnswerRepository         { return r.answer }
func (r *Repository) Enrollment() repositories.EnrollmentRepository { return r.enrollment }

func (r *Repository) Begin(ctx context.Context) (repositories.Repository, error) {
	if r.inTx {
		return nil, errors.New("transaction already in progress")
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return newRepository(tx, true), nil
}

func (r *Repository) Commit(ctx context.Context) error {
	if !r.inTx {
		return errors.New("not in a transaction")
	}
	return r.db.Commit().Error
}

func (r *Repository) Rollback(ctx context.Context) error {
	if !r.inTx {
		return errors.New("not in a transaction")
	}
	return r.db.Rollback().Error
}
