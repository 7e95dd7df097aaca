package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonsec/certgate/internal/domain"
)

// CertificateRepository reads certificates written by the external
// issuance pipeline. This service never inserts or updates them.
type CertificateRepository interface {
	FindByRecipient(ctx context.Context, seminarID, email string) (*domain.Certificate, error)
	GetByID(ctx context.Context, certificateID string) (*domain.Certificate, error)
}

type certificateRepository struct {
	pool *pgxpool.Pool
}

func NewCertificateRepository(pool *pgxpool.Pool) CertificateRepository {
	return &certificateRepository{pool: pool}
}

func (r *certificateRepository) FindByRecipient(ctx context.Context, seminarID, email string) (*domain.Certificate, error) {
	const q = `
		SELECT c.id, c.seminar_id, c.email, c.recipient_name, s.title, c.issued_at
		FROM certificates c
		JOIN seminars s ON s.id = c.seminar_id
		WHERE c.seminar_id = $1 AND lower(c.email) = lower($2)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var cert domain.Certificate
	err := r.pool.QueryRow(ctx, q, seminarID, email).Scan(
		&cert.ID, &cert.SeminarID, &cert.Email, &cert.RecipientName, &cert.SeminarTitle, &cert.IssuedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) GetByID(ctx context.Context, certificateID string) (*domain.Certificate, error) {
	const q = `
		SELECT c.id, c.seminar_id, c.email, c.recipient_name, s.title, c.issued_at
		FROM certificates c
		JOIN seminars s ON s.id = c.seminar_id
		WHERE c.id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var cert domain.Certificate
	err := r.pool.QueryRow(ctx, q, certificateID).Scan(
		&cert.ID, &cert.SeminarID, &cert.Email, &cert.RecipientName, &cert.SeminarTitle, &cert.IssuedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
