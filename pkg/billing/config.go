package billing

import (
	"net/http"
	"time"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Store is the record store the provider writes subscription state to.
	// The provider is the sole writer of subscription fields.
	Store gogate.Store

	// Gate is optional. When set, webhook writes invalidate the gate's
	// record cache so route guards pick up subscription changes without
	// waiting for the cache TTL.
	Gate *gogate.Gate

	// WebhookSecret is used to verify incoming webhook signatures.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// SubscriptionLength is the entitlement window written on a successful
	// payment. If zero, the provider default (30 days) applies.
	SubscriptionLength time.Duration

	// Logger is used for structured logging (default: NoopLogger)
	Logger gogate.Logger

	// Metrics is an optional metrics collector for billing operations.
	// If nil, metrics are silently ignored (no-op).
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics
}
