package gogate

import (
	"time"
)

// AccessState classifies an account's access at a point in time.
// It is recomputed on every evaluation, never persisted.
type AccessState string

const (
	// StateSubscribed means the account holds an active, unexpired subscription
	StateSubscribed AccessState = "subscribed"
	// StateTrialActive means the account is inside its free-trial window
	StateTrialActive AccessState = "trial_active"
	// StateTrialExpired means the account has neither subscription nor trial time left
	StateTrialExpired AccessState = "trial_expired"
)

// SubscriptionStatus is the persisted subscription state written by billing webhooks
type SubscriptionStatus string

const (
	// SubscriptionNone means the account never subscribed
	SubscriptionNone SubscriptionStatus = "none"
	// SubscriptionActive means the account has a paid subscription
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionCanceled means the subscription was canceled by the billing provider
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Account is the identity-provider view of a user. The gate trusts it as
// already authenticated; it only reads the id and creation time.
type Account struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// AccessRecord holds the per-account fields that govern trial and
// subscription gating. Exactly one exists per account, created at first
// login and mutated by the login flow and the billing webhook handler.
// The gate itself only reads it.
type AccessRecord struct {
	AccountID string

	// LastLogin is refreshed on every successful authentication.
	// Nil until the first login is recorded; evaluation falls back to the
	// account creation time.
	LastLogin *time.Time

	SubscriptionStatus SubscriptionStatus

	// SubscriptionStart and SubscriptionEnd are meaningful only while
	// SubscriptionStatus is active. A nil SubscriptionEnd on an active
	// subscription is treated as non-expiring.
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time

	// Opaque billing-provider references, used only to correlate webhook
	// events back to the account.
	StripeCustomerID  string
	SubscriptionID    string
	CheckoutSessionID string

	// UpdatedAt carries the timestamp of the last subscription-field write.
	// Webhook handlers use it to discard stale or duplicate events.
	UpdatedAt time.Time
}

// Decision is the result of a storage-backed access check. The route guard
// and the status API both consume it so they report from the same snapshot.
type Decision struct {
	State AccessState

	// RemainingTrialMinutes is display-only and never used for gating.
	RemainingTrialMinutes int

	// Record is the snapshot the decision was derived from. Nil when the
	// lookup failed and the decision degraded to StateTrialExpired.
	Record *AccessRecord
}

// Allowed reports whether the decision permits access to gated features
func (d Decision) Allowed() bool {
	return d.State == StateSubscribed || d.State == StateTrialActive
}

// CacheConfig configures the in-process record cache
type CacheConfig struct {
	// Enabled determines if caching is active
	Enabled bool

	// TTL is how long a record may be served from cache (default: 10 seconds).
	// A cached record can lag webhook writes by at most this long; the
	// server-side guard remains authoritative.
	TTL time.Duration

	// MaxRecords is the maximum number of records to cache (default: 10000)
	MaxRecords int
}

// CircuitBreakerConfig configures the breaker around store lookups
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive lookup failures before
	// the circuit opens (default: 5)
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe lookup
	// is allowed through (default: 30 seconds)
	ResetTimeout time.Duration
}

// Config holds gate configuration
type Config struct {
	// TrialWindow is the free-trial length measured from the last login,
	// or from account creation when no login was recorded (default: 1 hour)
	TrialWindow time.Duration

	// LookupTimeout bounds the store lookup inside Check. On timeout the
	// check fails closed to StateTrialExpired (default: 2 seconds).
	LookupTimeout time.Duration

	// Clock supplies the evaluation time (default: system clock)
	Clock Clock

	// CacheConfig configures the record cache (default: disabled)
	CacheConfig *CacheConfig

	// CircuitBreakerConfig configures the lookup circuit breaker (default: disabled)
	CircuitBreakerConfig *CircuitBreakerConfig

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking gate operations (default: NoopMetrics)
	Metrics Metrics
}
