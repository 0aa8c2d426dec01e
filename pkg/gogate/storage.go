package gogate

import (
	"context"
	"time"
)

// Store defines the interface for access-record persistence.
// All methods use concrete types from this package to avoid import cycles.
//
// The record is written by two uncoordinated writers: the login flow
// (RecordLogin) and the billing webhook handler (ApplySubscription). They
// touch disjoint fields, so implementations only need last-write-wins
// semantics per field, not whole-record transactions.
type Store interface {
	// GetRecord retrieves the access record for an account.
	// Returns ErrRecordNotFound when the account has no record yet.
	GetRecord(ctx context.Context, accountID string) (*AccessRecord, error)

	// RecordLogin upserts the record's LastLogin field. First login creates
	// the record; every login refreshes the timestamp. Subscription fields
	// are never touched.
	RecordLogin(ctx context.Context, accountID string, at time.Time) error

	// ApplySubscription upserts the record's subscription fields. Login
	// fields are never touched. Applying the same change twice must yield
	// the same record as applying it once.
	ApplySubscription(ctx context.Context, change *SubscriptionChange) error

	// FindByCustomer retrieves the record holding the given billing-provider
	// customer id. Returns ErrRecordNotFound for unknown customers.
	FindByCustomer(ctx context.Context, customerID string) (*AccessRecord, error)

	// SetCheckoutSession upserts the record's pending checkout session id,
	// written when a checkout session is created for the account.
	SetCheckoutSession(ctx context.Context, accountID, sessionID string) error
}

// SubscriptionChange is a field-scoped update applied by the webhook
// handler. Zero-valued optional fields are left untouched in the record.
type SubscriptionChange struct {
	AccountID string

	Status SubscriptionStatus

	// SubscriptionID and CustomerID overwrite the record's billing
	// references when non-empty.
	SubscriptionID string
	CustomerID     string

	// StartDate and EndDate overwrite the subscription window when non-nil
	StartDate *time.Time
	EndDate   *time.Time

	// EventTimestamp is when the originating billing event occurred. Stored
	// as the record's UpdatedAt so stale retries can be detected.
	EventTimestamp time.Time
}

// TimeSource is optionally implemented by storage backends that can report
// the storage engine's own clock. Using engine time for webhook staleness
// comparisons avoids clock skew between application servers.
type TimeSource interface {
	// Now returns the current time from the storage engine.
	Now(ctx context.Context) (time.Time, error)
}
