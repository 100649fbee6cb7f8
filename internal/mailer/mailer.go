package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers email.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender sends mail through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	from   *mail.Email
	host   string
	logger *slog.Logger
}

// NewSendGridSender creates a sender using apiKey and the given From address.
func NewSendGridSender(apiKey, fromEmail, fromName string, logger *slog.Logger) *SendGridSender {
	return &SendGridSender{
		apiKey: apiKey,
		from:   mail.NewEmail(fromName, fromEmail),
		host:   sendGridHost,
		logger: logger,
	}
}

// Name returns the name of this sender.
func (s *SendGridSender) Name() string {
	return "sendgrid"
}

// Send delivers msg. Any non-2xx response is an error.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("sendgrid: recipient is empty")
	}

	message := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail("", msg.To), msg.Text, msg.HTML)
	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sendgrid send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}

	s.logger.DebugContext(ctx, "mail sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

// MockSender logs each message and keeps a copy. It never fails unless Err is set.
type MockSender struct {
	logger *slog.Logger
	// Err, when set, is returned for recipients listed in FailFor (or all when FailFor is empty).
	Err     error
	FailFor map[string]bool

	mu   sync.Mutex
	sent []Message
}

// NewMockSender creates a new mock sender.
func NewMockSender(logger *slog.Logger) *MockSender {
	return &MockSender{logger: logger}
}

// Name returns the name of this sender.
func (s *MockSender) Name() string {
	return "mock"
}

// Send records msg.
func (s *MockSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil && (len(s.FailFor) == 0 || s.FailFor[msg.To]) {
		return s.Err
	}
	s.sent = append(s.sent, msg)

	s.logger.InfoContext(ctx, "mock sender: mail sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// Sent returns the messages recorded so far.
func (s *MockSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
