package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/draftcoach/billing/pkg/email"
)

// Notifier is told about committed tier changes. Notification failures never
// affect the record; the processor only logs them.
type Notifier interface {
	TierChanged(ctx context.Context, userID uuid.UUID, from, to Tier) error
}

// NoopNotifier ignores all notifications.
type NoopNotifier struct{}

func (NoopNotifier) TierChanged(context.Context, uuid.UUID, Tier, Tier) error { return nil }

// EmailNotifier mails tier changes to the billing operations address. It
// deliberately does not mail end users: this service has no access to user
// email addresses, only opaque IDs.
type EmailNotifier struct {
	sender email.Sender
	to     string
}

func NewEmailNotifier(sender email.Sender, to string) *EmailNotifier {
	return &EmailNotifier{sender: sender, to: to}
}

func (n *EmailNotifier) TierChanged(ctx context.Context, userID uuid.UUID, from, to Tier) error {
	return n.sender.Send(ctx, email.Message{
		To:      n.to,
		Subject: fmt.Sprintf("Subscription tier change: %s -> %s", from, to),
		BodyHTML: fmt.Sprintf(
			"<p>User <strong>%s</strong> moved from tier <strong>%s</strong> to <strong>%s</strong>.</p>",
			userID, from, to),
		Tag: "billing-tier-change",
	})
}
