// Package email delivers rendered reports to lodge officers.
package email

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("email has no recipients")

// Message is one outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string // plain-text alternative, optional
	ReplyTo string
}

// Receipt is the provider's acknowledgement of a message.
type Receipt struct {
	ID     string
	SentAt time.Time
}

// Sender delivers messages through an email provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
