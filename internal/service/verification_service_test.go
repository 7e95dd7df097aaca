package service_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/halcyonsec/certgate/internal/domain"
	"github.com/halcyonsec/certgate/internal/repository"
	"github.com/halcyonsec/certgate/internal/service"
	"github.com/halcyonsec/certgate/pkg/config"
)

// ---------- Mocks ----------

type mockSeminarRepo struct {
	seminars map[string]*domain.Seminar
}

func (m *mockSeminarRepo) GetByID(_ context.Context, id string) (*domain.Seminar, error) {
	s, ok := m.seminars[id]
	if !ok {
		return nil, domain.ErrSeminarNotFound
	}
	return s, nil
}

type mockChallengeRepo struct {
	rows       map[string]*domain.VerificationChallenge // seminarID + "|" + email
	magic      map[string]string                        // token -> key
	replaceErr error
}

func newMockChallengeRepo() *mockChallengeRepo {
	return &mockChallengeRepo{
		rows:  make(map[string]*domain.VerificationChallenge),
		magic: make(map[string]string),
	}
}

func challengeKey(seminarID, email string) string {
	return seminarID + "|" + email
}

func (m *mockChallengeRepo) Replace(_ context.Context, seminarID, email, codeHash, magicToken string, expiresAt time.Time) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	key := challengeKey(seminarID, email)
	if old, ok := m.rows[key]; ok {
		delete(m.magic, old.MagicToken)
	}
	m.rows[key] = &domain.VerificationChallenge{
		SeminarID:  seminarID,
		Email:      email,
		CodeHash:   codeHash,
		MagicToken: magicToken,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
	}
	m.magic[magicToken] = key
	return nil
}

func (m *mockChallengeRepo) Find(_ context.Context, seminarID, email string) (*domain.VerificationChallenge, error) {
	c, ok := m.rows[challengeKey(seminarID, email)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockChallengeRepo) Consume(_ context.Context, seminarID, email string) (bool, error) {
	c, ok := m.rows[challengeKey(seminarID, email)]
	if !ok || c.ConsumedAt != nil || time.Now().After(c.ExpiresAt) {
		return false, nil
	}
	now := time.Now()
	c.ConsumedAt = &now
	return true, nil
}

func (m *mockChallengeRepo) ConsumeMagic(_ context.Context, token string) (*domain.VerificationChallenge, error) {
	key, ok := m.magic[token]
	if !ok {
		return nil, nil
	}
	c := m.rows[key]
	if c.ConsumedAt != nil || time.Now().After(c.ExpiresAt) {
		return nil, nil
	}
	now := time.Now()
	c.ConsumedAt = &now
	cp := *c
	return &cp, nil
}

func (m *mockChallengeRepo) BumpAttempts(_ context.Context, seminarID, email string) (int, error) {
	c, ok := m.rows[challengeKey(seminarID, email)]
	if !ok || c.ConsumedAt != nil {
		return 0, nil
	}
	c.Attempts++
	return c.Attempts, nil
}

func (m *mockChallengeRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

func (m *mockChallengeRepo) CountBySeminar(_ context.Context, seminarID string) (int64, int64, error) {
	var issued, consumed int64
	for _, c := range m.rows {
		if c.SeminarID == seminarID {
			issued++
			if c.ConsumedAt != nil {
				consumed++
			}
		}
	}
	return issued, consumed, nil
}

type mockRegistrationRepo struct {
	registrations map[string]*domain.Registration
	feedback      map[string]bool
	findErr       error
	feedbackErr   error
}

func newMockRegistrationRepo() *mockRegistrationRepo {
	return &mockRegistrationRepo{
		registrations: make(map[string]*domain.Registration),
		feedback:      make(map[string]bool),
	}
}

func (m *mockRegistrationRepo) Find(_ context.Context, seminarID, email string) (*domain.Registration, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.registrations[challengeKey(seminarID, email)], nil
}

func (m *mockRegistrationRepo) FeedbackExists(_ context.Context, seminarID, email string) (bool, error) {
	if m.feedbackErr != nil {
		return false, m.feedbackErr
	}
	return m.feedback[challengeKey(seminarID, email)], nil
}

type mockCertificateRepo struct {
	byRecipient map[string]*domain.Certificate
	byID        map[string]*domain.Certificate
	findErr     error
}

func newMockCertificateRepo() *mockCertificateRepo {
	return &mockCertificateRepo{
		byRecipient: make(map[string]*domain.Certificate),
		byID:        make(map[string]*domain.Certificate),
	}
}

func (m *mockCertificateRepo) FindByRecipient(_ context.Context, seminarID, email string) (*domain.Certificate, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.byRecipient[challengeKey(seminarID, email)], nil
}

func (m *mockCertificateRepo) GetByID(_ context.Context, id string) (*domain.Certificate, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrCertificateNotFound
	}
	return c, nil
}

type mockMailer struct {
	lastTo   string
	lastCode string
	lastLink string
	sends    int
	sendErr  error
}

func (m *mockMailer) SendChallengeCode(toEmail, seminarTitle, code, magicLink string) error {
	m.sends++
	m.lastTo = toEmail
	m.lastCode = code
	m.lastLink = magicLink
	return m.sendErr
}

type mockPublisher struct {
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// ---------- Fixture ----------

type fixture struct {
	svc        service.VerificationService
	seminars   *mockSeminarRepo
	challenges *mockChallengeRepo
	regs       *mockRegistrationRepo
	certs      *mockCertificateRepo
	mail       *mockMailer
	pub        *mockPublisher
	cfg        *config.Config
}

func newFixture() *fixture {
	f := &fixture{
		seminars: &mockSeminarRepo{seminars: map[string]*domain.Seminar{
			"S1": {ID: "S1", Title: "Threat Modeling 101", CertificateEnabled: true},
			"S2": {ID: "S2", Title: "Zero Trust Basics", CertificateEnabled: false},
		}},
		challenges: newMockChallengeRepo(),
		regs:       newMockRegistrationRepo(),
		certs:      newMockCertificateRepo(),
		mail:       &mockMailer{},
		pub:        &mockPublisher{},
		cfg: &config.Config{
			Verify: config.VerifyConfig{
				ChallengeTTL:     10 * time.Minute,
				MaxAttempts:      5,
				MailSendTimeout:  2 * time.Second,
				MagicLinkBaseURL: "http://localhost:5173",
			},
		},
	}
	f.svc = service.NewVerificationService(f.seminars, f.challenges, f.regs, f.certs, f.mail, f.pub, f.cfg)
	return f
}

var _ repository.ChallengeRepository = (*mockChallengeRepo)(nil)
var _ repository.RegistrationRepository = (*mockRegistrationRepo)(nil)
var _ repository.CertificateRepository = (*mockCertificateRepo)(nil)

func (f *fixture) requestChallenge(t *testing.T, seminarID, email string) string {
	t.Helper()
	err := f.svc.RequestChallenge(context.Background(), &domain.AccessRequest{SeminarID: seminarID, Email: email})
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	return f.mail.lastCode
}

// ---------- RequestChallenge ----------

func TestRequestChallengeUnknownSeminar(t *testing.T) {
	f := newFixture()
	err := f.svc.RequestChallenge(context.Background(), &domain.AccessRequest{SeminarID: "nope", Email: "a@x.com"})
	if !errors.Is(err, domain.ErrSeminarNotFound) {
		t.Fatalf("expected ErrSeminarNotFound, got %v", err)
	}
	if f.mail.sends != 0 {
		t.Fatalf("no mail should be sent for unknown seminar")
	}
}

func TestRequestChallengeCertificatesDisabled(t *testing.T) {
	f := newFixture()
	err := f.svc.RequestChallenge(context.Background(), &domain.AccessRequest{SeminarID: "S2", Email: "a@x.com"})
	if !errors.Is(err, domain.ErrCertificatesNotEnabled) {
		t.Fatalf("expected ErrCertificatesNotEnabled, got %v", err)
	}
}

func TestRequestChallengeSendsSixDigitCode(t *testing.T) {
	f := newFixture()
	code := f.requestChallenge(t, "S1", "A@X.com ")

	if !regexp.MustCompile(`^\d{6}$`).MatchString(code) {
		t.Fatalf("expected a 6-digit code, got %q", code)
	}
	if f.mail.lastTo != "a@x.com" {
		t.Fatalf("email not normalized before send: %q", f.mail.lastTo)
	}

	stored, _ := f.challenges.Find(context.Background(), "S1", "a@x.com")
	if stored == nil {
		t.Fatal("challenge not persisted")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.CodeHash), []byte(code)); err != nil {
		t.Fatal("stored hash does not match the sent code")
	}
	if stored.CodeHash == code {
		t.Fatal("code must not be stored in plaintext")
	}
}

func TestRequestChallengeDispatchFailureKeepsChallenge(t *testing.T) {
	f := newFixture()
	f.mail.sendErr = fmt.Errorf("smtp down")

	err := f.svc.RequestChallenge(context.Background(), &domain.AccessRequest{SeminarID: "S1", Email: "a@x.com"})
	if !errors.Is(err, domain.ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}

	stored, _ := f.challenges.Find(context.Background(), "S1", "a@x.com")
	if stored == nil {
		t.Fatal("challenge should stay live so the caller can resend")
	}
}

func TestRequestChallengeValidation(t *testing.T) {
	f := newFixture()
	cases := []domain.AccessRequest{
		{SeminarID: "", Email: "a@x.com"},
		{SeminarID: "S1", Email: ""},
		{SeminarID: "S1", Email: "not-an-email"},
	}
	for _, req := range cases {
		if err := f.svc.RequestChallenge(context.Background(), &req); err == nil {
			t.Fatalf("expected validation error for %+v", req)
		}
	}
}

// ---------- VerifyChallenge state machine ----------

func TestVerifyChallengeHappyPathFeedbackMissing(t *testing.T) {
	f := newFixture()
	f.regs.registrations["S1|a@x.com"] = &domain.Registration{SeminarID: "S1", Email: "a@x.com", Name: "Ada"}

	code := f.requestChallenge(t, "S1", "a@x.com")

	result, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	want := domain.EligibilityResult{HasRegistration: true, RegistrantName: "Ada"}
	if *result != want {
		t.Fatalf("got %+v, want %+v", *result, want)
	}
}

func TestVerifyChallengeFeedbackComplete(t *testing.T) {
	f := newFixture()
	f.regs.registrations["S1|a@x.com"] = &domain.Registration{SeminarID: "S1", Email: "a@x.com", Name: "Ada"}
	f.regs.feedback["S1|a@x.com"] = true

	code := f.requestChallenge(t, "S1", "a@x.com")

	result, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.HasRegistration || !result.HasFeedback || result.HasCertificate {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyChallengeCertificateShortCircuits(t *testing.T) {
	f := newFixture()
	f.regs.registrations["S1|a@x.com"] = &domain.Registration{SeminarID: "S1", Email: "a@x.com", Name: "Ada"}
	// Feedback flag deliberately absent: certificate existence implies it.
	f.certs.byRecipient["S1|a@x.com"] = &domain.Certificate{ID: "CERT-9", SeminarID: "S1"}

	code := f.requestChallenge(t, "S1", "a@x.com")

	result, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !result.HasRegistration || !result.HasFeedback || !result.HasCertificate {
		t.Fatalf("certificate must imply registration and feedback: %+v", result)
	}
	if result.CertificateID != "CERT-9" {
		t.Fatalf("expected certificate id CERT-9, got %q", result.CertificateID)
	}
}

func TestVerifyChallengeNoRegistration(t *testing.T) {
	f := newFixture()
	code := f.requestChallenge(t, "S1", "a@x.com")

	result, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.HasRegistration || result.HasFeedback || result.HasCertificate {
		t.Fatalf("expected all-false result, got %+v", result)
	}
}

func TestVerifyChallengeConsumesExactlyOnce(t *testing.T) {
	f := newFixture()
	f.regs.registrations["S1|a@x.com"] = &domain.Registration{SeminarID: "S1", Email: "a@x.com", Name: "Ada"}
	code := f.requestChallenge(t, "S1", "a@x.com")

	req := &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code}
	if _, err := f.svc.VerifyChallenge(context.Background(), req); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}
	if _, err := f.svc.VerifyChallenge(context.Background(), req); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("second verify with a consumed code must fail with ErrCodeExpired, got %v", err)
	}
}

func TestVerifyChallengeWrongCode(t *testing.T) {
	f := newFixture()
	code := f.requestChallenge(t, "S1", "a@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: wrong})
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	// The correct code still works after one wrong attempt.
	if _, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code}); err != nil {
		t.Fatalf("correct code should still verify: %v", err)
	}
}

func TestVerifyChallengeNoChallenge(t *testing.T) {
	f := newFixture()
	_, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: "123456"})
	if !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestVerifyChallengeExpired(t *testing.T) {
	f := newFixture()
	code := f.requestChallenge(t, "S1", "a@x.com")

	// Age the row past its TTL.
	f.challenges.rows["S1|a@x.com"].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired for expired challenge, got %v", err)
	}
}

func TestVerifyChallengeAttemptCap(t *testing.T) {
	f := newFixture()
	code := f.requestChallenge(t, "S1", "a@x.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < f.cfg.Verify.MaxAttempts; i++ {
		if _, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: wrong}); !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i, err)
		}
	}

	// Cap reached: even the correct code is rejected until reissue.
	if _, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code}); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired once attempt cap is hit, got %v", err)
	}

	// A fresh challenge resets the counter.
	newCode := f.requestChallenge(t, "S1", "a@x.com")
	if _, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: newCode}); err != nil {
		t.Fatalf("reissued challenge should verify: %v", err)
	}
}

func TestReissueInvalidatesStaleCode(t *testing.T) {
	f := newFixture()
	first := f.requestChallenge(t, "S1", "a@x.com")
	second := f.requestChallenge(t, "S1", "a@x.com")

	if first == second {
		t.Skip("identical codes drawn; cannot distinguish reissue")
	}

	_, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: first})
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("stale code after reissue must fail with ErrInvalidCode, got %v", err)
	}

	if _, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: second}); err != nil {
		t.Fatalf("newest code should verify: %v", err)
	}
}

func TestVerifyChallengeLookupFailure(t *testing.T) {
	f := newFixture()
	f.regs.findErr = fmt.Errorf("connection refused")
	code := f.requestChallenge(t, "S1", "a@x.com")

	_, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if !errors.Is(err, domain.ErrLookupFailed) {
		t.Fatalf("store failure must surface as ErrLookupFailed, got %v", err)
	}
}

func TestVerifyChallengeFeedbackLookupFailure(t *testing.T) {
	f := newFixture()
	f.regs.registrations["S1|a@x.com"] = &domain.Registration{SeminarID: "S1", Email: "a@x.com", Name: "Ada"}
	f.regs.feedbackErr = fmt.Errorf("connection refused")
	code := f.requestChallenge(t, "S1", "a@x.com")

	_, err := f.svc.VerifyChallenge(context.Background(), &domain.AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: code})
	if !errors.Is(err, domain.ErrLookupFailed) {
		t.Fatalf("expected ErrLookupFailed, got %v", err)
	}
}

// ---------- Magic link ----------

func TestVerifyMagicLink(t *testing.T) {
	f := newFixture()
	f.regs.registrations["S1|a@x.com"] = &domain.Registration{SeminarID: "S1", Email: "a@x.com", Name: "Ada"}
	f.requestChallenge(t, "S1", "a@x.com")

	token := f.challenges.rows["S1|a@x.com"].MagicToken

	result, err := f.svc.VerifyMagicLink(context.Background(), token)
	if err != nil {
		t.Fatalf("magic link verify failed: %v", err)
	}
	if !result.HasRegistration {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Single use: the same token cannot consume twice.
	if _, err := f.svc.VerifyMagicLink(context.Background(), token); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("second magic consume must fail, got %v", err)
	}
}

func TestVerifyMagicLinkUnknownToken(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.VerifyMagicLink(context.Background(), "no-such-token"); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}
