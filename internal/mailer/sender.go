package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/codeteki/outreach/internal/brands"
)

// OutboundMessage is one email ready to hand to the provider
type OutboundMessage struct {
	Brand    string // Brand key resolving the sending identity
	To       string
	Subject  string
	HTMLBody string
}

// SendResult reports the outcome of a provider send attempt
type SendResult struct {
	MessageID string // Provider correlation ID for the sent message
}

// HardBounceError marks a permanent delivery failure: the address is
// invalid and must never be retried
type HardBounceError struct {
	Address string
	Err     error
}

func (e *HardBounceError) Error() string {
	return fmt.Sprintf("hard bounce for %s: %v", e.Address, e.Err)
}

func (e *HardBounceError) Unwrap() error {
	return e.Err
}

// Sender abstracts the email provider so tests can substitute a fake
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) (*SendResult, error)
}

// SMTPSender sends mail over SMTP with per-brand credentials from the
// brand registry
type SMTPSender struct {
	registry *brands.Registry
}

// NewSMTPSender creates an SMTP-backed sender
func NewSMTPSender(registry *brands.Registry) *SMTPSender {
	return &SMTPSender{registry: registry}
}

// Send delivers one message through the brand's SMTP account
func (s *SMTPSender) Send(_ context.Context, msg *OutboundMessage) (*SendResult, error) {
	brand, err := s.registry.Get(msg.Brand)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve sending brand: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), brand.SMTP.Host)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", brand.FromEmail, brand.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	if brand.ReplyTo != "" {
		m.SetHeader("Reply-To", brand.ReplyTo)
	}
	m.SetBody("text/html", msg.HTMLBody)

	d := gomail.NewDialer(brand.SMTP.Host, brand.SMTP.Port, brand.SMTP.User, brand.SMTP.Password)

	if err := d.DialAndSend(m); err != nil {
		if isPermanentFailure(err) {
			return nil, &HardBounceError{Address: msg.To, Err: err}
		}
		return nil, fmt.Errorf("smtp send failed: %w", err)
	}

	return &SendResult{MessageID: messageID}, nil
}

// isPermanentFailure recognizes SMTP rejects that indicate an invalid
// recipient address
func isPermanentFailure(err error) bool {
	text := err.Error()
	for _, code := range []string{"550", "551", "553"} {
		if strings.Contains(text, code) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(text), "no such user") ||
		strings.Contains(strings.ToLower(text), "user unknown")
}
