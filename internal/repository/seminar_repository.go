package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonsec/certgate/internal/domain"
)

// SeminarRepository reads seminar metadata owned by the admin workflow.
type SeminarRepository interface {
	GetByID(ctx context.Context, seminarID string) (*domain.Seminar, error)
}

type seminarRepository struct {
	pool *pgxpool.Pool
}

func NewSeminarRepository(pool *pgxpool.Pool) SeminarRepository {
	return &seminarRepository{pool: pool}
}

func (r *seminarRepository) GetByID(ctx context.Context, seminarID string) (*domain.Seminar, error) {
	const q = `
		SELECT id, title, certificate_enabled, created_at
		FROM seminars
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.Seminar
	err := r.pool.QueryRow(ctx, q, seminarID).Scan(&s.ID, &s.Title, &s.CertificateEnabled, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSeminarNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
