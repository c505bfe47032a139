// Package mailer sends notification e-mail and renders alert messages.
package mailer

import (
	"context"
	"fmt"
	"sync"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/config"
	"github.com/wneessen/go-mail"
)

// MethodEmail is recorded on tracking records written after an e-mail send.
const MethodEmail = "email"

// Sender delivers one message to one address.
type Sender interface {
	Send(ctx context.Context, to, subject, bodyHTML, bodyText string) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	from   string
	client *mail.Client
}

// NewSMTPSender builds a sender from configuration. It does not dial until the first Send.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{from: cfg.From, client: client}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, to, subject, bodyHTML, bodyText string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", s.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, bodyText)
	if bodyHTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, bodyHTML)
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// SentMessage is a message captured by MockSender.
type SentMessage struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
}

// MockSender records messages in memory and fails for configured addresses.
type MockSender struct {
	mu       sync.Mutex
	Messages []SentMessage
	FailFor  map[string]error
}

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{FailFor: make(map[string]error)}
}

// Send implements Sender.
func (m *MockSender) Send(_ context.Context, to, subject, bodyHTML, bodyText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[to]; ok {
		return err
	}
	m.Messages = append(m.Messages, SentMessage{To: to, Subject: subject, BodyHTML: bodyHTML, BodyText: bodyText})
	return nil
}

// Sent returns a copy of the captured messages.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Messages...)
}
