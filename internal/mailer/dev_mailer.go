package mailer

import (
	"fmt"

	"github.com/halcyonsec/certgate/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendChallengeCode(toEmail, seminarTitle, code, magicLink string) error {
	logger.Info("[DEV MAIL] Certificate verification code",
		"to", toEmail,
		"seminar", seminarTitle,
		"code", code,
		"magic_link", magicLink,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"CERTIFICATE VERIFICATION EMAIL (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Seminar: %s\n"+
		"Code: %s\n"+
		"Magic Link: %s\n"+
		"=================================================================\n\n",
		toEmail, seminarTitle, code, magicLink)

	return nil
}
