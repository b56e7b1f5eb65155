// Package mailer delivers one-time codes. Delivery is fire-and-forget from
// the registry's point of view: a mail outage must never block account
// creation.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resendlabs/resend-go"
)

//go:generate mockgen -destination ../../mocks/mailer/mailer_mock.go -package mailermock ballotgate/internal/mailer Mailer

// Mailer sends a one-time verification code to an address.
type Mailer interface {
	SendOTP(ctx context.Context, toEmail, code string) error
}

// ResendMailer sends codes through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResend(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (m *ResendMailer) SendOTP(_ context.Context, toEmail, code string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{toEmail},
		Subject: "Your voting verification code",
		Html: fmt.Sprintf(
			"<p>Your verification code is: <strong>%s</strong></p><p>This code expires in 10 minutes.</p>",
			code,
		),
	}
	if _, err := m.client.Emails.Send(params); err != nil {
		return fmt.Errorf("send otp via resend: %w", err)
	}
	return nil
}

// LogMailer writes codes to the log instead of sending mail. Development
// mode only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOTP(ctx context.Context, toEmail, code string) error {
	m.logger.InfoContext(ctx, "otp generated (mail disabled)",
		"email", toEmail,
		"code", code,
	)
	return nil
}
