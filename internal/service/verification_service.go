package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/halcyonsec/certgate/internal/domain"
	"github.com/halcyonsec/certgate/internal/mailer"
	"github.com/halcyonsec/certgate/internal/repository"
	"github.com/halcyonsec/certgate/pkg/config"
	"github.com/halcyonsec/certgate/pkg/events"
	"github.com/halcyonsec/certgate/pkg/logger"
)

type VerificationService interface {
	RequestChallenge(ctx context.Context, req *domain.AccessRequest) error
	VerifyChallenge(ctx context.Context, req *domain.AccessVerify) (*domain.EligibilityResult, error)
	VerifyMagicLink(ctx context.Context, token string) (*domain.EligibilityResult, error)
}

type verificationService struct {
	seminarRepo      repository.SeminarRepository
	challengeRepo    repository.ChallengeRepository
	registrationRepo repository.RegistrationRepository
	certificateRepo  repository.CertificateRepository
	mailer           mailer.Service
	publisher        events.Publisher
	config           *config.Config
}

func NewVerificationService(
	seminarRepo repository.SeminarRepository,
	challengeRepo repository.ChallengeRepository,
	registrationRepo repository.RegistrationRepository,
	certificateRepo repository.CertificateRepository,
	mailer mailer.Service,
	publisher events.Publisher,
	config *config.Config,
) VerificationService {
	return &verificationService{
		seminarRepo:      seminarRepo,
		challengeRepo:    challengeRepo,
		registrationRepo: registrationRepo,
		certificateRepo:  certificateRepo,
		mailer:           mailer,
		publisher:        publisher,
		config:           config,
	}
}

func (s *verificationService) RequestChallenge(ctx context.Context, req *domain.AccessRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	seminar, err := s.seminarRepo.GetByID(ctx, req.SeminarID)
	if err != nil {
		return err
	}
	if !seminar.CertificateEnabled {
		return domain.ErrCertificatesNotEnabled
	}

	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash verification code: %w", err)
	}

	magicToken := uuid.NewString()
	expiresAt := time.Now().Add(s.config.Verify.ChallengeTTL)

	// Upsert: any earlier challenge for this key is overwritten, so a
	// stale code can never validate after a newer one was requested.
	if err := s.challengeRepo.Replace(ctx, req.SeminarID, req.Email, string(codeHash), magicToken, expiresAt); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.SubjectChallengeIssued, map[string]string{
		"seminar_id": req.SeminarID,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish challenge issued event", "error", err)
	}

	magicLink := s.buildMagicLink(magicToken)
	if err := s.sendWithTimeout(ctx, req.Email, seminar.Title, code, magicLink); err != nil {
		logger.ErrorContext(ctx, "Failed to send challenge code", "error", err, "seminar_id", req.SeminarID)
		// The challenge row stays live; the caller may request a resend.
		return fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err)
	}

	return nil
}

func (s *verificationService) VerifyChallenge(ctx context.Context, req *domain.AccessVerify) (*domain.EligibilityResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	challenge, err := s.challengeRepo.Find(ctx, req.SeminarID, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil || !challenge.CanAttempt(s.config.Verify.MaxAttempts) {
		return nil, domain.ErrCodeExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(req.Code)); err != nil {
		if _, err := s.challengeRepo.BumpAttempts(ctx, req.SeminarID, req.Email); err != nil {
			logger.ErrorContext(ctx, "Failed to bump challenge attempts", "error", err)
		}
		return nil, domain.ErrInvalidCode
	}

	// Conditional update: a racing second verify on the same code loses
	// here and is rejected even though the hash matched.
	consumed, err := s.challengeRepo.Consume(ctx, req.SeminarID, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !consumed {
		return nil, domain.ErrCodeExpired
	}

	if err := s.publisher.Publish(ctx, events.SubjectChallengeConsumed, map[string]string{
		"seminar_id": req.SeminarID,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish challenge consumed event", "error", err)
	}

	return s.resolveEligibility(ctx, req.SeminarID, req.Email)
}

func (s *verificationService) VerifyMagicLink(ctx context.Context, token string) (*domain.EligibilityResult, error) {
	challenge, err := s.challengeRepo.ConsumeMagic(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume magic token: %w", err)
	}
	if challenge == nil {
		return nil, domain.ErrCodeExpired
	}

	if err := s.publisher.Publish(ctx, events.SubjectChallengeConsumed, map[string]string{
		"seminar_id": challenge.SeminarID,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish challenge consumed event", "error", err)
	}

	return s.resolveEligibility(ctx, challenge.SeminarID, challenge.Email)
}

// resolveEligibility is a pure read-and-branch over the external stores.
// A certificate row short-circuits: it could only have been issued after
// registration and feedback, so neither is re-derived from storage.
func (s *verificationService) resolveEligibility(ctx context.Context, seminarID, email string) (*domain.EligibilityResult, error) {
	registration, err := s.registrationRepo.Find(ctx, seminarID, email)
	if err != nil {
		return nil, fmt.Errorf("%w: registration lookup: %v", domain.ErrLookupFailed, err)
	}
	if registration == nil {
		return &domain.EligibilityResult{}, nil
	}

	certificate, err := s.certificateRepo.FindByRecipient(ctx, seminarID, email)
	if err != nil {
		return nil, fmt.Errorf("%w: certificate lookup: %v", domain.ErrLookupFailed, err)
	}
	if certificate != nil {
		return &domain.EligibilityResult{
			HasRegistration: true,
			HasFeedback:     true,
			HasCertificate:  true,
			CertificateID:   certificate.ID,
		}, nil
	}

	hasFeedback, err := s.registrationRepo.FeedbackExists(ctx, seminarID, email)
	if err != nil {
		return nil, fmt.Errorf("%w: feedback lookup: %v", domain.ErrLookupFailed, err)
	}

	return &domain.EligibilityResult{
		HasRegistration: true,
		HasFeedback:     hasFeedback,
		RegistrantName:  registration.Name,
	}, nil
}

func (s *verificationService) sendWithTimeout(ctx context.Context, email, seminarTitle, code, magicLink string) error {
	done := make(chan error, 1)
	go func() {
		done <- s.mailer.SendChallengeCode(email, seminarTitle, code, magicLink)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(s.config.Verify.MailSendTimeout):
		return fmt.Errorf("mail send timed out after %s", s.config.Verify.MailSendTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *verificationService) buildMagicLink(token string) string {
	return fmt.Sprintf("%s/certificates/access/magic?token=%s", s.config.Verify.MagicLinkBaseURL, token)
}

// generateVerificationCode draws a fixed-length numeric code from
// crypto/rand. The code is a bearer secret; it must not be predictable.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
