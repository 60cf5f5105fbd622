package email

import (
	"context"
	"fmt"
	"regexp"
)

// Sender sends transactional emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single transactional email.
type Message struct {
	To       string // recipient address
	Subject  string
	BodyHTML string
	Tag      string // optional provider-side category
}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks that the message can be sent.
func (m Message) Validate() error {
	if m.To == "" || !emailRegex.MatchString(m.To) {
		return fmt.Errorf("%w: recipient address %q", ErrInvalidMessage, m.To)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.BodyHTML == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// NoopSender discards messages. Used when no email provider is configured,
// e.g. in local development and tests.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, msg Message) error {
	return msg.Validate()
}
