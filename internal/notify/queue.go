package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fintra/authserver/internal/mq"
)

// QueueSender hands messages to the message broker. A worker process
// drains the queues and performs the provider call, so a publish failure
// here is the delivery failure the caller sees.
type QueueSender struct {
	backend    mq.Backend
	emailQueue string
	smsQueue   string
}

// NewQueueSender constructs a sender publishing to the named queues.
func NewQueueSender(backend mq.Backend, emailQueue, smsQueue string) *QueueSender {
	return &QueueSender{
		backend:    backend,
		emailQueue: emailQueue,
		smsQueue:   smsQueue,
	}
}

// SendEmail publishes the message to the email queue.
func (s *QueueSender) SendEmail(ctx context.Context, msg Message) error {
	return s.publish(ctx, s.emailQueue, msg)
}

// SendSMS publishes the message to the SMS queue.
func (s *QueueSender) SendSMS(ctx context.Context, msg Message) error {
	return s.publish(ctx, s.smsQueue, msg)
}

func (s *QueueSender) publish(ctx context.Context, queue string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notify message: %w", err)
	}
	if _, err := s.backend.Publish(ctx, queue, data, map[string]string{"kind": msg.Kind}); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}
