package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	timeout time.Duration
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string, timeout time.Duration) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		timeout: timeout,
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendChallengeCode(toEmail, seminarTitle, code, magicLink string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := fmt.Sprintf("Your certificate verification code for %s", seminarTitle)
	html := fmt.Sprintf(`
		<h2>Certificate verification</h2>
		<p>Your verification code for <strong>%s</strong> is:</p>
		<p><strong style="font-size: 24px; letter-spacing: 4px;">%s</strong></p>
		<p>Or click the link below to verify directly:</p>
		<p><a href="%s" style="background-color: #1a73e8; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Verify my email</a></p>
		<p>This code will expire in 10 minutes.</p>
		<p>If you did not request a certificate, please ignore this email.</p>
	`, seminarTitle, code, magicLink)

	text := fmt.Sprintf("Your verification code for %s is: %s\n\nOr open this link to verify directly: %s", seminarTitle, code, magicLink)

	return m.sendEmail(toEmail, subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
