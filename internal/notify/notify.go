package notify

import (
	"context"
	"log/slog"
)

// Message kinds.
const (
	KindOTP         = "otp"
	KindPasswordSet = "password_set"
	KindLogin       = "login"
)

// Message describes an outbound email or SMS.
type Message struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body"`
}

// Sender delivers messages to the user's contact channels.
type Sender interface {
	SendEmail(ctx context.Context, msg Message) error
	SendSMS(ctx context.Context, msg Message) error
}

// LogSender writes messages to the structured logger instead of a real
// provider. Used in development and as the worker's terminal sender until
// a provider integration lands.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a logging sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendEmail writes the email to the logger.
func (s *LogSender) SendEmail(_ context.Context, msg Message) error {
	s.logger.Info("email", "kind", msg.Kind, "recipient", msg.Recipient, "subject", msg.Subject, "body", msg.Body)
	return nil
}

// SendSMS writes the SMS to the logger.
func (s *LogSender) SendSMS(_ context.Context, msg Message) error {
	s.logger.Info("sms", "kind", msg.Kind, "recipient", msg.Recipient, "body", msg.Body)
	return nil
}
