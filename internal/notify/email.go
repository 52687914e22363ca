// Package notify delivers booking lifecycle emails. Delivery is best effort:
// failures are logged and never surface to the request that triggered them.
package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/bookwell/bookwell/internal/model"
)

type Sender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@bookwell.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// EmailNotifier sends lifecycle emails to invitees on a background goroutine.
type EmailNotifier struct {
	sender Sender
	logger *slog.Logger
}

func NewEmailNotifier(sender Sender, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{sender: sender, logger: logger}
}

func (n *EmailNotifier) BookingCreated(b model.Booking) {
	n.send(b, "Booking confirmed",
		fmt.Sprintf("Your booking is confirmed for %s.", renderTime(b)))
}

func (n *EmailNotifier) BookingRescheduled(b model.Booking) {
	n.send(b, "Booking rescheduled",
		fmt.Sprintf("Your booking was moved to %s.", renderTime(b)))
}

func (n *EmailNotifier) BookingCancelled(b model.Booking) {
	n.send(b, "Booking cancelled",
		fmt.Sprintf("Your booking for %s was cancelled.", renderTime(b)))
}

func (n *EmailNotifier) send(b model.Booking, subject, body string) {
	to := strings.TrimSpace(b.Invitee.Email)
	if to == "" {
		return
	}
	go func() {
		if err := n.sender.Send(to, subject, body); err != nil {
			n.logger.Warn("email send failed",
				"booking_uuid", b.UUID, "error", err)
		}
	}()
}

// renderTime prefers the invitee's timezone when it parses; otherwise UTC.
func renderTime(b model.Booking) string {
	loc := time.UTC
	if b.Invitee.Timezone != "" {
		if l, err := time.LoadLocation(b.Invitee.Timezone); err == nil {
			loc = l
		}
	}
	return b.StartTime.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")
}
