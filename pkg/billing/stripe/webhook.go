package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gogate/pkg/billing"
	"github.com/mihaimyh/gogate/pkg/billing/internal"
	"github.com/mihaimyh/gogate/pkg/gogate"
)

// accountIDMetadataKey is the metadata key the checkout flow stamps on
// sessions so webhook events can be routed back to an internal account.
const accountIDMetadataKey = "user_id"

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-r.Context().Done():
		http.Error(w, "request timeout", http.StatusRequestTimeout)
		return
	default:
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, 256*1024)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// Verify webhook signature. Unsigned or tampered payloads are rejected
	// before any state is touched.
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		// Store write failed; 500 so Stripe redelivers the event.
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent dispatches a verified event. Event timestamps drive
// idempotency: an event that is not newer than the record's last update is
// a duplicate or an out-of-order delivery and is skipped.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	eventTimestamp := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event, eventTimestamp)
	case "invoice.payment_succeeded":
		return p.handleInvoicePaymentSucceeded(ctx, event, eventTimestamp)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event, eventTimestamp)
	default:
		// Unknown event type - ignore silently
		return nil
	}
}

// handleCheckoutSessionCompleted activates the subscription for the account
// named in the session metadata. The payload carries everything needed; no
// Stripe API round trip is required.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event, eventTimestamp time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	accountID := ""
	if session.Metadata != nil {
		accountID = session.Metadata[accountIDMetadataKey]
	}
	if accountID == "" {
		accountID = session.ClientReferenceID
	}
	if accountID == "" {
		// Session from another product or a misconfigured checkout.
		// Nothing to correlate against; acknowledge so Stripe stops retrying.
		p.logger.Warn("checkout session has no account metadata",
			gogate.Field{Key: "session_id", Value: session.ID})
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "skipped")
		return nil
	}

	if session.Mode != "" && session.Mode != stripe.CheckoutSessionModeSubscription {
		// One-time payment checkout, not a subscription
		return nil
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}

	existing, err := p.store.GetRecord(ctx, accountID)
	if err != nil && !errors.Is(err, gogate.ErrRecordNotFound) {
		return err
	}
	if p.stale(existing, eventTimestamp, event) {
		return nil
	}

	previous := previousStatus(existing)
	startDate := eventTimestamp
	endDate := eventTimestamp.Add(p.subscriptionLength)

	change := &gogate.SubscriptionChange{
		AccountID:      accountID,
		Status:         gogate.SubscriptionActive,
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		StartDate:      &startDate,
		EndDate:        &endDate,
		EventTimestamp: eventTimestamp,
	}
	if err := p.store.ApplySubscription(ctx, change); err != nil {
		return fmt.Errorf("failed to apply subscription: %w", err)
	}

	p.invalidate(accountID)
	p.recordChange(previous, gogate.SubscriptionActive)
	p.logger.Info("subscription activated",
		gogate.Field{Key: "account_id", Value: accountID},
		gogate.Field{Key: "subscription_id", Value: subscriptionID})
	p.notify(&billing.WebhookEvent{
		AccountID:      accountID,
		PreviousStatus: previous,
		NewStatus:      gogate.SubscriptionActive,
		Provider:       providerName,
		EventType:      string(event.Type),
		EventTimestamp: eventTimestamp,
	})
	return nil
}

// handleInvoicePaymentSucceeded extends the subscription window on renewal.
// The account is correlated through the stored Stripe customer id.
func (p *Provider) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event, eventTimestamp time.Time) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	if customerID == "" {
		customerID = rawString(event.Data.Raw, "customer")
	}
	if customerID == "" {
		// Invoice without a customer, nothing to correlate
		return nil
	}

	subscriptionID := rawString(event.Data.Raw, "subscription")
	if subscriptionID == "" {
		// One-time payment invoice, not a subscription renewal. Paying an
		// unrelated invoice must not extend gated access.
		p.logger.Debug("ignoring non-subscription invoice",
			gogate.Field{Key: "customer_id", Value: customerID})
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "skipped")
		return nil
	}

	rec, err := p.store.FindByCustomer(ctx, customerID)
	if errors.Is(err, gogate.ErrRecordNotFound) {
		// Customer unknown to us, likely from a different product sharing
		// the Stripe account. Acknowledge; retrying will not help.
		p.logger.Warn("invoice for unknown customer",
			gogate.Field{Key: "customer_id", Value: customerID})
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "skipped")
		return nil
	}
	if err != nil {
		return err
	}
	if p.stale(rec, eventTimestamp, event) {
		return nil
	}

	previous := previousStatus(rec)
	startDate := eventTimestamp
	endDate := eventTimestamp.Add(p.subscriptionLength)

	change := &gogate.SubscriptionChange{
		AccountID:      rec.AccountID,
		Status:         gogate.SubscriptionActive,
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		StartDate:      &startDate,
		EndDate:        &endDate,
		EventTimestamp: eventTimestamp,
	}
	if err := p.store.ApplySubscription(ctx, change); err != nil {
		return fmt.Errorf("failed to apply renewal: %w", err)
	}

	p.invalidate(rec.AccountID)
	p.recordChange(previous, gogate.SubscriptionActive)
	p.logger.Info("subscription renewed",
		gogate.Field{Key: "account_id", Value: rec.AccountID},
		gogate.Field{Key: "ends_at", Value: endDate})
	p.notify(&billing.WebhookEvent{
		AccountID:      rec.AccountID,
		PreviousStatus: previous,
		NewStatus:      gogate.SubscriptionActive,
		Provider:       providerName,
		EventType:      string(event.Type),
		EventTimestamp: eventTimestamp,
	})
	return nil
}

// handleSubscriptionDeleted marks the subscription canceled. The record's
// trial fields are untouched; a canceled subscriber falls back to trial
// evaluation, which for any aged account means no access.
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event, eventTimestamp time.Time) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	customerID := ""
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}
	if customerID == "" {
		return nil
	}

	rec, err := p.store.FindByCustomer(ctx, customerID)
	if errors.Is(err, gogate.ErrRecordNotFound) {
		p.logger.Warn("subscription deletion for unknown customer",
			gogate.Field{Key: "customer_id", Value: customerID})
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "skipped")
		return nil
	}
	if err != nil {
		return err
	}
	if p.stale(rec, eventTimestamp, event) {
		return nil
	}

	previous := previousStatus(rec)

	change := &gogate.SubscriptionChange{
		AccountID:      rec.AccountID,
		Status:         gogate.SubscriptionCanceled,
		SubscriptionID: subscription.ID,
		CustomerID:     customerID,
		EventTimestamp: eventTimestamp,
	}
	if err := p.store.ApplySubscription(ctx, change); err != nil {
		return fmt.Errorf("failed to apply cancellation: %w", err)
	}

	p.invalidate(rec.AccountID)
	p.recordChange(previous, gogate.SubscriptionCanceled)
	p.logger.Info("subscription canceled",
		gogate.Field{Key: "account_id", Value: rec.AccountID})
	p.notify(&billing.WebhookEvent{
		AccountID:      rec.AccountID,
		PreviousStatus: previous,
		NewStatus:      gogate.SubscriptionCanceled,
		Provider:       providerName,
		EventType:      string(event.Type),
		EventTimestamp: eventTimestamp,
	})
	return nil
}

// stale reports whether the event predates the record's last update.
// Stripe delivers at-least-once with no ordering guarantee; without this
// check a redelivered checkout event could resurrect a canceled
// subscription.
func (p *Provider) stale(rec *gogate.AccessRecord, eventTimestamp time.Time, event *stripe.Event) bool {
	if rec == nil || rec.UpdatedAt.IsZero() {
		return false
	}
	if eventTimestamp.After(rec.UpdatedAt) {
		return false
	}
	p.logger.Debug("skipping stale webhook event",
		gogate.Field{Key: "event_type", Value: string(event.Type)},
		gogate.Field{Key: "event_id", Value: event.ID})
	p.metrics.RecordWebhookEvent(providerName, string(event.Type), "skipped")
	return true
}

func (p *Provider) recordChange(from, to gogate.SubscriptionStatus) {
	if from != to {
		p.metrics.RecordSubscriptionChange(providerName, string(from), string(to))
	}
}

func previousStatus(rec *gogate.AccessRecord) gogate.SubscriptionStatus {
	if rec == nil {
		return gogate.SubscriptionNone
	}
	return rec.SubscriptionStatus
}

// rawString pulls a top-level string field out of the raw event payload.
// Stripe renders some references as bare id strings rather than expanded
// objects, which the typed structs drop.
func rawString(raw json.RawMessage, key string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	if obj, ok := m[key].(map[string]interface{}); ok {
		if id, ok := obj["id"].(string); ok {
			return id
		}
	}
	return ""
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
