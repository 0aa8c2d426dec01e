package billing

import (
	"time"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// WebhookEvent describes a successfully processed webhook event. It is
// passed to the optional WebhookCallback after the record store has been
// updated, for audit logging or downstream notification.
type WebhookEvent struct {
	// AccountID is the internal account identifier
	AccountID string

	// PreviousStatus is the subscription status before the update
	// (empty when the account had no record)
	PreviousStatus gogate.SubscriptionStatus

	// NewStatus is the subscription status after the update
	NewStatus gogate.SubscriptionStatus

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type, e.g.
	// "checkout.session.completed" or "customer.subscription.deleted"
	EventType string

	// EventTimestamp is when the event occurred (from the provider)
	EventTimestamp time.Time
}

// WebhookCallback is invoked after a webhook event has been applied.
// Callbacks run synchronously inside the webhook handler; keep them fast.
type WebhookCallback func(event *WebhookEvent)
