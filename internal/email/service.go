package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type Service interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sender is the part of gomail.Dialer we use.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	sender sender
	from   string
}

func NewSMTPService(cfg Config) Service {
	return &smtpService{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("email has no recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() { done <- s.sender.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disabled drops every message. Used when SMTP is not configured.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return nil }
