package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonsec/certgate/internal/domain"
)

type ChallengeRepository interface {
	// Replace upserts the challenge row for (seminarID, email). A reissue
	// overwrites code hash, magic token and timestamps and resets the
	// attempt counter: last write wins, at most one active challenge per key.
	Replace(ctx context.Context, seminarID, email, codeHash, magicToken string, expiresAt time.Time) error

	// Find returns the challenge row for the key, or nil when none exists.
	Find(ctx context.Context, seminarID, email string) (*domain.VerificationChallenge, error)

	// Consume marks the challenge consumed if and only if it is still live.
	// The conditional update guarantees at most one success under
	// concurrent verify attempts on the same code.
	Consume(ctx context.Context, seminarID, email string) (bool, error)

	// ConsumeMagic consumes a live challenge by its magic-link token and
	// returns its key, or nil when the token is unknown, consumed or expired.
	ConsumeMagic(ctx context.Context, token string) (*domain.VerificationChallenge, error)

	// BumpAttempts increments the wrong-code counter and returns the new value.
	BumpAttempts(ctx context.Context, seminarID, email string) (int, error)

	// DeleteExpired reclaims challenge rows expired more than 7 days ago.
	DeleteExpired(ctx context.Context) (int64, error)

	// CountBySeminar reports issued/consumed totals for a seminar.
	CountBySeminar(ctx context.Context, seminarID string) (issued, consumed int64, err error)
}

type challengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) ChallengeRepository {
	return &challengeRepository{pool: pool}
}

func (r *challengeRepository) Replace(ctx context.Context, seminarID, email, codeHash, magicToken string, expiresAt time.Time) error {
	const q = `
		INSERT INTO verification_challenges (seminar_id, email, code_hash, magic_token, expires_at)
		VALUES ($1, lower($2), $3, $4, $5)
		ON CONFLICT (seminar_id, email) DO UPDATE SET
			code_hash   = EXCLUDED.code_hash,
			magic_token = EXCLUDED.magic_token,
			expires_at  = EXCLUDED.expires_at,
			consumed_at = NULL,
			attempts    = 0,
			created_at  = now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, seminarID, email, codeHash, magicToken, expiresAt)
	return err
}

func (r *challengeRepository) Find(ctx context.Context, seminarID, email string) (*domain.VerificationChallenge, error) {
	const q = `
		SELECT id, seminar_id, email, code_hash, magic_token, expires_at, consumed_at, attempts, created_at
		FROM verification_challenges
		WHERE seminar_id = $1 AND email = lower($2)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.VerificationChallenge
	err := r.pool.QueryRow(ctx, q, seminarID, email).Scan(
		&c.ID, &c.SeminarID, &c.Email, &c.CodeHash, &c.MagicToken,
		&c.ExpiresAt, &c.ConsumedAt, &c.Attempts, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *challengeRepository) Consume(ctx context.Context, seminarID, email string) (bool, error) {
	const q = `
		UPDATE verification_challenges
		SET consumed_at = now()
		WHERE seminar_id = $1
		  AND email = lower($2)
		  AND consumed_at IS NULL
		  AND expires_at > now()
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx, q, seminarID, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil // missing, consumed, or expired
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *challengeRepository) ConsumeMagic(ctx context.Context, token string) (*domain.VerificationChallenge, error) {
	const q = `
		UPDATE verification_challenges
		SET consumed_at = now()
		WHERE magic_token = $1
		  AND consumed_at IS NULL
		  AND expires_at > now()
		RETURNING id, seminar_id, email, expires_at, attempts, created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.VerificationChallenge
	err := r.pool.QueryRow(ctx, q, token).Scan(
		&c.ID, &c.SeminarID, &c.Email, &c.ExpiresAt, &c.Attempts, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *challengeRepository) BumpAttempts(ctx context.Context, seminarID, email string) (int, error) {
	const q = `
		UPDATE verification_challenges
		SET attempts = attempts + 1
		WHERE seminar_id = $1
		  AND email = lower($2)
		  AND consumed_at IS NULL
		RETURNING attempts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, seminarID, email).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return attempts, err
}

func (r *challengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM verification_challenges
		WHERE (consumed_at IS NOT NULL AND consumed_at < now() - interval '7 days')
		   OR (consumed_at IS NULL AND expires_at < now() - interval '7 days')`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

func (r *challengeRepository) CountBySeminar(ctx context.Context, seminarID string) (int64, int64, error) {
	const q = `
		SELECT count(*), count(consumed_at)
		FROM verification_challenges
		WHERE seminar_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var issued, consumed int64
	err := r.pool.QueryRow(ctx, q, seminarID).Scan(&issued, &consumed)
	return issued, consumed, err
}
