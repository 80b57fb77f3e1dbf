package email

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNoopSender_RecordsMessages(t *testing.T) {
	s := NewNoopSender()
	msg := Message{To: []string{"secretary@lodge.example"}, Subject: "Attendance", HTML: "<p>ok</p>"}

	receipt, err := s.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.HasPrefix(receipt.ID, "noop-") {
		t.Errorf("ID = %q, want noop- prefix", receipt.ID)
	}
	if got := s.Sent(); len(got) != 1 || got[0].Subject != "Attendance" {
		t.Errorf("Sent() = %+v, want the one message", got)
	}
}

func TestSenders_RejectNoRecipients(t *testing.T) {
	senders := map[string]Sender{
		"noop":   NewNoopSender(),
		"resend": NewResendSender("re_test", "lodge@example.org", ""),
	}
	for name, s := range senders {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Send(context.Background(), Message{Subject: "x"}); !errors.Is(err, ErrNoRecipients) {
				t.Errorf("Send() error = %v, want ErrNoRecipients", err)
			}
		})
	}
}
