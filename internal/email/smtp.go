package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPServerConfig holds all the necessary configuration for connecting to an SMTP server.
type SMTPServerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string // The "From" email address
}

// EmailService sends notification emails.
type EmailService struct {
	config   SMTPServerConfig
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailService creates a new service for sending emails.
func NewEmailService(config SMTPServerConfig) *EmailService {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &EmailService{
		config:   config,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// SendMemberJoinedEmail tells a club's creator that someone joined.
func (s *EmailService) SendMemberJoinedEmail(recipientEmail, memberName, clubName, clubURL string, memberCount int) error {
	subject := fmt.Sprintf("%s joined %s on TabysLink", memberName, clubName)
	body := fmt.Sprintf(
		"Hi there,\n\n%s has just joined your club '%s'. The club now has %d members.\n\nSee who is in your club:\n%s\n\nThe TabysLink Team",
		memberName,
		clubName,
		memberCount,
		clubURL,
	)
	return s.send(recipientEmail, subject, body)
}

func (s *EmailService) send(recipient, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Header values must not carry line breaks from user-supplied names.
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)

	message := []byte(
		"To: " + recipient + "\r\n" +
			"From: " + s.config.Sender + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n")

	if err := s.sendMail(addr, s.auth, s.config.Sender, []string{recipient}, message); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	return nil
}
