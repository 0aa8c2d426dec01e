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

// syncAccountFromAPI reconciles an account's record against the Stripe API.
// Webhooks are the normal update path; sync covers missed deliveries and
// "restore purchases" flows.
func (p *Provider) syncAccountFromAPI(ctx context.Context, accountID string) (gogate.SubscriptionStatus, error) {
	startTime := time.Now()

	rec, err := p.store.GetRecord(ctx, accountID)
	if errors.Is(err, gogate.ErrRecordNotFound) {
		// No record means nothing was ever purchased through us
		p.metrics.RecordAccountSync(providerName, "success")
		return gogate.SubscriptionNone, nil
	}
	if err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		return gogate.SubscriptionNone, err
	}
	if rec.StripeCustomerID == "" {
		p.metrics.RecordAccountSync(providerName, "success")
		return rec.SubscriptionStatus, nil
	}

	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(rec.StripeCustomerID)
	params.Status = stripe.String(subscriptionStatusActive)

	var active *stripe.Subscription
	for sub, err := range p.stripeClient.V1Subscriptions.List(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/subscriptions/list", "error")
			p.metrics.RecordAccountSync(providerName, "error")
			return rec.SubscriptionStatus, fmt.Errorf("%w: %v", billing.ErrProviderAPIError, err)
		}
		if sub.Status != subscriptionStatusActive {
			continue
		}
		// Keep the most recently created subscription when several exist
		if active == nil || sub.Created > active.Created {
			active = sub
		}
	}

	p.metrics.RecordAPICall(providerName, "/subscriptions/list", "200")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions/list", time.Since(startTime))

	now := time.Now().UTC()
	change := &gogate.SubscriptionChange{
		AccountID:      accountID,
		CustomerID:     rec.StripeCustomerID,
		EventTimestamp: now,
	}

	status := gogate.SubscriptionCanceled
	if active != nil {
		status = gogate.SubscriptionActive
		change.SubscriptionID = active.ID
		startDate := time.Unix(active.Created, 0).UTC()
		endDate := now.Add(p.subscriptionLength)
		change.StartDate = &startDate
		change.EndDate = &endDate
	} else if rec.SubscriptionStatus == gogate.SubscriptionNone {
		// Never subscribed and still no subscription upstream, leave the
		// record alone
		p.metrics.RecordAccountSync(providerName, "success")
		return gogate.SubscriptionNone, nil
	}
	change.Status = status

	if err := p.store.ApplySubscription(ctx, change); err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		return rec.SubscriptionStatus, fmt.Errorf("failed to apply synced state: %w", err)
	}

	p.invalidate(accountID)
	p.recordChange(rec.SubscriptionStatus, status)
	p.metrics.RecordAccountSync(providerName, "success")
	return status, nil
}
