package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonsec/certgate/internal/domain"
)

// RegistrationRepository reads registration and feedback records created
// by the seminar sign-up and feedback workflows. Both are read-only here.
type RegistrationRepository interface {
	Find(ctx context.Context, seminarID, email string) (*domain.Registration, error)
	FeedbackExists(ctx context.Context, seminarID, email string) (bool, error)
}

type registrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(pool *pgxpool.Pool) RegistrationRepository {
	return &registrationRepository{pool: pool}
}

func (r *registrationRepository) Find(ctx context.Context, seminarID, email string) (*domain.Registration, error) {
	const q = `
		SELECT id, seminar_id, email, name, registered_at
		FROM seminar_registrations
		WHERE seminar_id = $1 AND lower(email) = lower($2)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var reg domain.Registration
	err := r.pool.QueryRow(ctx, q, seminarID, email).Scan(
		&reg.ID, &reg.SeminarID, &reg.Email, &reg.Name, &reg.RegisteredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *registrationRepository) FeedbackExists(ctx context.Context, seminarID, email string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM seminar_feedback
			WHERE seminar_id = $1 AND lower(email) = lower($2)
		)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, seminarID, email).Scan(&exists)
	return exists, err
}
