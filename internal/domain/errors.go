package domain

import "errors"

// Error taxonomy for the verification workflow. Handlers map these to
// HTTP responses; ErrInvalidCode and ErrCodeExpired are surfaced with an
// identical body so a caller cannot probe which emails hold a challenge.
var (
	ErrSeminarNotFound        = errors.New("seminar not found")
	ErrCertificatesNotEnabled = errors.New("certificates are not enabled for this seminar")
	ErrCertificateNotFound    = errors.New("certificate not found")

	// ErrInvalidCode: a live challenge exists but the submitted code does
	// not match it.
	ErrInvalidCode = errors.New("incorrect verification code")

	// ErrCodeExpired: no challenge, past TTL, attempt cap reached, or
	// already consumed.
	ErrCodeExpired = errors.New("verification code expired or missing")

	// ErrDispatchFailed: the mail channel rejected or timed out; the
	// challenge row is still live and the caller may request a resend.
	ErrDispatchFailed = errors.New("failed to send verification code")

	// ErrLookupFailed: a registration/feedback/certificate store was
	// unreachable. Never mapped to "not registered".
	ErrLookupFailed = errors.New("eligibility lookup failed")
)
