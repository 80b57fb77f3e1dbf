package email

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoopSender keeps messages in memory instead of delivering them. It is
// used when no provider key is configured and in tests.
type NoopSender struct {
	mu   sync.Mutex
	sent []Message
}

// NewNoopSender creates an empty NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send records msg and logs that it was not delivered.
func (s *NoopSender) Send(_ context.Context, msg Message) (Receipt, error) {
	if len(msg.To) == 0 {
		return Receipt{}, ErrNoRecipients
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	slog.Info("report_email_skipped", "reason", "no provider configured", "to", msg.To, "subject", msg.Subject)
	return Receipt{ID: "noop-" + uuid.NewString(), SentAt: time.Now()}, nil
}

// Sent returns every message recorded so far.
func (s *NoopSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
