package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/fintra/authserver/internal/mq"
)

// Worker drains the delivery queues and hands each message to the
// terminal sender. Malformed payloads are acked and logged so they do
// not wedge the queue.
type Worker struct {
	backend    mq.Backend
	terminal   Sender
	emailQueue string
	smsQueue   string
	logger     *slog.Logger
}

// NewWorker constructs a worker consuming the named queues.
func NewWorker(backend mq.Backend, terminal Sender, emailQueue, smsQueue string, logger *slog.Logger) *Worker {
	return &Worker{
		backend:    backend,
		terminal:   terminal,
		emailQueue: emailQueue,
		smsQueue:   smsQueue,
		logger:     logger,
	}
}

// Run consumes both queues until ctx is cancelled. A failure on either
// subscription cancels the other; the first error is returned after both
// have stopped.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() {
		errs <- w.backend.Subscribe(ctx, w.emailQueue, w.handle(w.terminal.SendEmail))
	}()
	go func() {
		errs <- w.backend.Subscribe(ctx, w.smsQueue, w.handle(w.terminal.SendSMS))
	}()

	err := <-errs
	cancel()
	if second := <-errs; err == nil {
		err = second
	}
	return err
}

func (w *Worker) handle(deliver func(context.Context, Message) error) mq.Handler {
	return func(ctx context.Context, raw mq.Message) error {
		var msg Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			w.logger.Warn("dropping malformed notify message", "id", raw.ID, "error", err)
			return nil
		}
		if err := deliver(ctx, msg); err != nil {
			w.logger.Error("delivery failed", "id", raw.ID, "kind", msg.Kind, "error", err)
			return err
		}
		return nil
	}
}
