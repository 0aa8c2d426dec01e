package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gogate/pkg/billing"
	"github.com/mihaimyh/gogate/pkg/gogate"
)

// CheckoutURL creates a Stripe Checkout Session for the account and returns
// the hosted payment page URL. The session carries the account id in its
// metadata so the completion webhook can be correlated without a customer
// lookup.
func (p *Provider) CheckoutURL(ctx context.Context, account gogate.Account, successURL, cancelURL string) (string, error) {
	startTime := time.Now()

	if account.ID == "" {
		return "", gogate.ErrInvalidAccount
	}
	if p.priceID == "" {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "price_not_configured")
		return "", fmt.Errorf("%w: checkout price not configured", billing.ErrProviderNotConfigured)
	}

	// Reuse the stored customer if we have one; prevents duplicate Stripe
	// customers on repeat checkouts. A missing record is fine, Stripe
	// creates the customer during checkout. A store failure is not: fail
	// rather than risk a duplicate.
	customerID := ""
	rec, err := p.store.GetRecord(ctx, account.ID)
	if err != nil && !errors.Is(err, gogate.ErrRecordNotFound) {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "customer_resolution_failed")
		return "", fmt.Errorf("failed to resolve customer: %w", err)
	}
	if rec != nil {
		customerID = rec.StripeCustomerID
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}

	// The webhook handler resolves the account from this metadata
	params.AddMetadata(accountIDMetadataKey, account.ID)
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(accountIDMetadataKey, account.ID)

	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else {
		params.ClientReferenceID = stripe.String(account.ID)
		if account.Email != "" {
			params.CustomerEmail = stripe.String(account.Email)
		}
	}

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
		return "", fmt.Errorf("%w: %v", billing.ErrProviderAPIError, err)
	}

	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "200")
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))

	// Remember the pending session so support can trace abandoned
	// checkouts. Failure here is not fatal, the webhook still correlates
	// through metadata.
	if err := p.store.SetCheckoutSession(ctx, account.ID, session.ID); err != nil {
		p.logger.Warn("failed to persist checkout session id",
			gogate.Field{Key: "account_id", Value: account.ID},
			gogate.Field{Key: "error", Value: err.Error()})
	}

	return session.URL, nil
}
