package mailer

// Service delivers verification codes. Delivery mechanics (templates,
// provider retries, bounce handling) live with the provider.
type Service interface {
	SendChallengeCode(toEmail, seminarTitle, code, magicLink string) error
}
