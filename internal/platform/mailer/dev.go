package mailer

import (
	"time"

	"github.com/meridianhq/visitdesk/pkg/logger"
)

// DevMailer prints notifications to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("📧 [DEV MAIL]",
		"to", toEmail,
		"name", toName,
		"subject", subject,
		"text", text,
	)
	return "dev-mail", nil
}

func (d *DevMailer) SendHostArrival(toEmail, hostName, visitorName string, at time.Time) error {
	logger.Info("📧 [DEV MAIL] Host arrival notification",
		"to", toEmail,
		"host", hostName,
		"visitor", visitorName,
		"checked_in_at", at.Format(time.RFC3339),
	)
	return nil
}

var _ Service = (*DevMailer)(nil)
