package mailer

import "time"

type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	SendHostArrival(toEmail, hostName, visitorName string, at time.Time) error
}
