package mailer

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"gopkg.in/gomail.v2"

	"github.com/atriumhq/atrium/internal/logger"
)

// Sender delivers one-time codes out-of-band. Codes are plaintext here
// and nowhere else: storage only ever sees them hashed or for
// exact-match lookup.
type Sender interface {
	SendAccountVerification(ctx context.Context, email string, code string, link string) error
	SendPasswordReset(ctx context.Context, email string, code string) error
	SendGroupInvitation(ctx context.Context, email string, groupName string, link string) error
}

// LogSender writes codes to the log instead of sending email
// Development and test use only
type LogSender struct {
	Logger logger.Logger
}

func (s *LogSender) SendAccountVerification(_ context.Context, email string, code string, link string) error {
	s.Logger.Info("account verification code issued", "email", email, "code", code, "link", link)
	return nil
}

func (s *LogSender) SendPasswordReset(_ context.Context, email string, code string) error {
	s.Logger.Info("password reset code issued", "email", email, "code", code)
	return nil
}

func (s *LogSender) SendGroupInvitation(_ context.Context, email string, groupName string, link string) error {
	s.Logger.Info("group invitation issued", "email", email, "group", groupName, "link", link)
	return nil
}

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
}

// SMTPSender delivers codes over SMTP
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp address %q: %w", cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp port %q: %w", portStr, err)
	}

	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}, nil
}

func (s *SMTPSender) SendAccountVerification(_ context.Context, email string, code string, link string) error {
	body := fmt.Sprintf(
		"Welcome! Use code %s to verify your account, or follow the link:\r\n%s\r\n\r\nThe code expires in 10 minutes.",
		code, link,
	)
	return s.send(email, "Verify your account", body)
}

func (s *SMTPSender) SendPasswordReset(_ context.Context, email string, code string) error {
	body := fmt.Sprintf(
		"Use code %s to reset your password.\r\n\r\nThe code expires in 10 minutes. If you did not request a reset, ignore this message.",
		code,
	)
	return s.send(email, "Reset your password", body)
}

func (s *SMTPSender) SendGroupInvitation(_ context.Context, email string, groupName string, link string) error {
	body := fmt.Sprintf("You were invited to join %q. Accept the invitation:\r\n%s", groupName, link)
	return s.send(email, fmt.Sprintf("Invitation to %s", groupName), body)
}

func (s *SMTPSender) send(to string, subject string, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}
	return nil
}
