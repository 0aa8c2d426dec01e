package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gogate/pkg/billing"
	"github.com/mihaimyh/gogate/pkg/billing/internal"
	"github.com/mihaimyh/gogate/pkg/gogate"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100

	// defaultSubscriptionLength is the entitlement window written on a
	// successful payment when Config.SubscriptionLength is zero.
	defaultSubscriptionLength = 30 * 24 * time.Hour

	subscriptionStatusActive = "active"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Store, Gate, SubscriptionLength, etc.)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string

	// PriceID is the Stripe Price used when creating checkout sessions.
	// Required only when CheckoutURL is used.
	PriceID string

	// WebhookCallback is invoked after each successfully applied webhook
	// event. Optional.
	WebhookCallback billing.WebhookCallback
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	store              gogate.Store
	gate               *gogate.Gate
	config             Config
	httpClient         *http.Client
	rateLimiter        *internal.RateLimiter
	webhookSecret      []byte
	apiKey             string
	priceID            string
	subscriptionLength time.Duration
	stripeClient       *stripe.Client
	callback           billing.WebhookCallback
	logger             gogate.Logger
	metrics            billing.Metrics
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(config.APIKey)
	}
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	// Create Stripe client (new API in v82+)
	stripeClient := stripe.NewClient(apiKey)

	webhookSecretStr := strings.TrimSpace(config.StripeWebhookSecret)
	if webhookSecretStr == "" {
		webhookSecretStr = strings.TrimSpace(config.WebhookSecret)
	}
	webhookSecret := []byte(webhookSecretStr)

	subscriptionLength := config.SubscriptionLength
	if subscriptionLength <= 0 {
		subscriptionLength = defaultSubscriptionLength
	}

	// Setup rate limiter
	limiter := internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow)

	logger := config.Logger
	if logger == nil {
		logger = &gogate.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		store:              config.Store,
		gate:               config.Gate,
		config:             config,
		httpClient:         httpClient,
		rateLimiter:        limiter,
		webhookSecret:      webhookSecret,
		apiKey:             apiKey,
		priceID:            strings.TrimSpace(config.PriceID),
		subscriptionLength: subscriptionLength,
		stripeClient:       stripeClient,
		callback:           config.WebhookCallback,
		logger:             logger,
		metrics:            metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}

// SyncAccount synchronizes an account's subscription state from Stripe
func (p *Provider) SyncAccount(ctx context.Context, accountID string) (gogate.SubscriptionStatus, error) {
	return p.syncAccountFromAPI(ctx, accountID)
}

// invalidate drops the gate's cached record for the account, if a gate
// was configured. Webhook writes go straight to the store, so without
// this a guard could serve a stale decision until the cache TTL expires.
func (p *Provider) invalidate(accountID string) {
	if p.gate != nil {
		p.gate.Invalidate(accountID)
	}
}

func (p *Provider) notify(event *billing.WebhookEvent) {
	if p.callback != nil {
		p.callback(event)
	}
}
