package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/halcyonsec/certgate/internal/utils"
)

type AccessRequest struct {
	SeminarID string `json:"seminar_id"`
	Email     string `json:"email"`
}

type AccessVerify struct {
	SeminarID string `json:"seminar_id"`
	Email     string `json:"email"`
	Code      string `json:"code"`
}

// VerificationChallenge is the only mutable record this service owns.
// One row per (seminar_id, email); a reissue replaces the row in place.
type VerificationChallenge struct {
	ID         int64      `json:"id"`
	SeminarID  string     `json:"seminar_id"`
	Email      string     `json:"email"`
	CodeHash   string     `json:"-"`
	MagicToken string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validation methods
func (r *AccessRequest) Validate() error {
	if r.SeminarID == "" {
		return fmt.Errorf("seminar_id is required")
	}
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmailFormat(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func (r *AccessVerify) Validate() error {
	if r.SeminarID == "" {
		return fmt.Errorf("seminar_id is required")
	}
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmailFormat(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Code == "" {
		return fmt.Errorf("code is required")
	}
	if !codePattern.MatchString(r.Code) {
		return fmt.Errorf("code must be 6 digits")
	}
	return nil
}

// Normalize methods
func (r *AccessRequest) Normalize() {
	r.SeminarID = utils.NormalizeString(r.SeminarID)
	r.Email = utils.NormalizeEmail(r.Email)
}

func (r *AccessVerify) Normalize() {
	r.SeminarID = utils.NormalizeString(r.SeminarID)
	r.Email = utils.NormalizeEmail(r.Email)
	r.Code = utils.NormalizeString(r.Code)
}

var (
	codePattern = regexp.MustCompile(`^\d{6}$`)
	emailRegex  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

func isValidEmailFormat(email string) bool {
	return emailRegex.MatchString(email)
}

// Business logic methods
func (c *VerificationChallenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *VerificationChallenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}

func (c *VerificationChallenge) CanAttempt(maxAttempts int) bool {
	return c.Attempts < maxAttempts && !c.IsExpired() && !c.IsConsumed()
}
