package domain

import "time"

// Seminar metadata is owned by the seminar admin workflow; this service
// only reads it.
type Seminar struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	CertificateEnabled bool      `json:"certificate_enabled"`
	CreatedAt          time.Time `json:"created_at"`
}

// Registration records are created by the seminar registration workflow.
type Registration struct {
	ID           int64     `json:"id"`
	SeminarID    string    `json:"seminar_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Certificate is the terminal state of the eligibility workflow. Issuance
// (rendering, PDF export) happens outside this service; once a row exists
// the verification flow redirects to it instead of re-running the gate.
type Certificate struct {
	ID            string    `json:"id"`
	SeminarID     string    `json:"seminar_id"`
	Email         string    `json:"-"`
	RecipientName string    `json:"recipient_name"`
	SeminarTitle  string    `json:"seminar_title"`
	IssuedAt      time.Time `json:"issued_at"`
}

// EligibilityResult is returned to the caller after a successful code
// verification. CertificateID and RegistrantName are only set on their
// respective branches.
type EligibilityResult struct {
	HasRegistration bool   `json:"hasRegistration"`
	HasFeedback     bool   `json:"hasFeedback"`
	HasCertificate  bool   `json:"hasCertificate"`
	CertificateID   string `json:"certificateId,omitempty"`
	RegistrantName  string `json:"registrantName,omitempty"`
}
