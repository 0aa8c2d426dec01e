package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// Provider is the generic interface any billing backend must implement.
// The rest of the application never talks to the payment processor's SDK
// directly; it consumes subscription state through the gate's record store,
// which the provider's webhook handler writes.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// subscription lifecycle events. The implementation handles signature
	// verification, parsing, and record-store updates internally.
	WebhookHandler() http.Handler

	// SyncAccount forces a synchronization of the account's subscription
	// state from the provider into the record store. Used for "restore
	// purchases" flows or nightly reconciliation jobs.
	// Returns the resulting subscription status and any error.
	SyncAccount(ctx context.Context, accountID string) (gogate.SubscriptionStatus, error)
}
