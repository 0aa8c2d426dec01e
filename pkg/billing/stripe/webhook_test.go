package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gogate/pkg/billing"
	"github.com/mihaimyh/gogate/pkg/gogate"
	"github.com/mihaimyh/gogate/storage/memory"
)

const (
	testAccountID      = "user-123"
	testCustomerID     = "cus_test123"
	testSubscriptionID = "sub_test123"
	testAPIKey         = "sk_test_123"
	testWebhookSecret  = "whsec_test_secret"
)

func newTestProvider(t *testing.T) (*Provider, *memory.Store) {
	t.Helper()
	store := memory.New()
	provider, err := NewProvider(Config{
		Config: billing.Config{
			Store: store,
		},
		StripeAPIKey:        testAPIKey,
		StripeWebhookSecret: testWebhookSecret,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, store
}

func checkoutEvent(t *testing.T, accountID string, created time.Time) *stripe.Event {
	t.Helper()
	session := stripe.CheckoutSession{
		ID:   "cs_test123",
		Mode: stripe.CheckoutSessionModeSubscription,
		Metadata: map[string]string{
			"user_id": accountID,
		},
		Subscription: &stripe.Subscription{ID: testSubscriptionID},
		Customer:     &stripe.Customer{ID: testCustomerID},
	}
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("Failed to marshal session: %v", err)
	}
	return &stripe.Event{
		ID:      "evt_checkout",
		Type:    "checkout.session.completed",
		Created: created.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func invoiceEvent(t *testing.T, customerID string, created time.Time) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":           "in_test123",
		"customer":     map[string]interface{}{"id": customerID},
		"subscription": testSubscriptionID,
	})
	if err != nil {
		t.Fatalf("Failed to marshal invoice: %v", err)
	}
	return &stripe.Event{
		ID:      "evt_invoice",
		Type:    "invoice.payment_succeeded",
		Created: created.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func subscriptionDeletedEvent(t *testing.T, customerID string, created time.Time) *stripe.Event {
	t.Helper()
	sub := stripe.Subscription{
		ID:       testSubscriptionID,
		Status:   "canceled",
		Customer: &stripe.Customer{ID: customerID},
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("Failed to marshal subscription: %v", err)
	}
	return &stripe.Event{
		ID:      "evt_sub_deleted",
		Type:    "customer.subscription.deleted",
		Created: created.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func TestCheckoutSessionCompleted_ActivatesSubscription(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := provider.processWebhookEvent(ctx, checkoutEvent(t, testAccountID, now)); err != nil {
		t.Fatalf("processWebhookEvent failed: %v", err)
	}

	rec, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.SubscriptionStatus != gogate.SubscriptionActive {
		t.Errorf("Expected status active, got %s", rec.SubscriptionStatus)
	}
	if rec.StripeCustomerID != testCustomerID {
		t.Errorf("Expected customer id %s, got %s", testCustomerID, rec.StripeCustomerID)
	}
	if rec.SubscriptionID != testSubscriptionID {
		t.Errorf("Expected subscription id %s, got %s", testSubscriptionID, rec.SubscriptionID)
	}
	if rec.SubscriptionEnd == nil {
		t.Fatal("Expected subscription end date to be set")
	}
	wantEnd := now.Add(30 * 24 * time.Hour)
	if !rec.SubscriptionEnd.Equal(wantEnd) {
		t.Errorf("Expected end %v, got %v", wantEnd, *rec.SubscriptionEnd)
	}
}

func TestCheckoutSessionCompleted_MissingAccountMetadata(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()

	session := stripe.CheckoutSession{ID: "cs_no_meta", Mode: stripe.CheckoutSessionModeSubscription}
	raw, _ := json.Marshal(session)
	event := &stripe.Event{
		ID:      "evt_no_meta",
		Type:    "checkout.session.completed",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}

	// Must acknowledge without touching state
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if _, err := store.GetRecord(ctx, testAccountID); !errors.Is(err, gogate.ErrRecordNotFound) {
		t.Errorf("Expected no record, got err %v", err)
	}
}

func TestCheckoutSessionCompleted_DuplicateEventSkipped(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	event := checkoutEvent(t, testAccountID, now)
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("First delivery failed: %v", err)
	}
	first, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}

	// Redelivery of the same event must be a no-op
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("Second delivery failed: %v", err)
	}
	second, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("Duplicate event modified the record: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}
	if !second.SubscriptionEnd.Equal(*first.SubscriptionEnd) {
		t.Errorf("Duplicate event moved the end date: %v vs %v", second.SubscriptionEnd, first.SubscriptionEnd)
	}
}

func TestInvoicePaymentSucceeded_RenewsSubscription(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()
	checkoutAt := time.Now().UTC().Add(-20 * 24 * time.Hour).Truncate(time.Second)
	renewAt := time.Now().UTC().Truncate(time.Second)

	if err := provider.processWebhookEvent(ctx, checkoutEvent(t, testAccountID, checkoutAt)); err != nil {
		t.Fatalf("Checkout event failed: %v", err)
	}
	if err := provider.processWebhookEvent(ctx, invoiceEvent(t, testCustomerID, renewAt)); err != nil {
		t.Fatalf("Invoice event failed: %v", err)
	}

	rec, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.SubscriptionStatus != gogate.SubscriptionActive {
		t.Errorf("Expected status active, got %s", rec.SubscriptionStatus)
	}
	wantEnd := renewAt.Add(30 * 24 * time.Hour)
	if rec.SubscriptionEnd == nil || !rec.SubscriptionEnd.Equal(wantEnd) {
		t.Errorf("Expected renewed end %v, got %v", wantEnd, rec.SubscriptionEnd)
	}
}

func TestInvoicePaymentSucceeded_NonSubscriptionInvoiceIgnored(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()
	checkoutAt := time.Now().UTC().Add(-40 * 24 * time.Hour).Truncate(time.Second)

	// Subscription lapsed 10 days ago
	if err := provider.processWebhookEvent(ctx, checkoutEvent(t, testAccountID, checkoutAt)); err != nil {
		t.Fatalf("Checkout event failed: %v", err)
	}

	// One-time payment invoice for the same customer, no subscription field
	raw, err := json.Marshal(map[string]interface{}{
		"id":       "in_onetime",
		"customer": map[string]interface{}{"id": testCustomerID},
	})
	if err != nil {
		t.Fatalf("Failed to marshal invoice: %v", err)
	}
	event := &stripe.Event{
		ID:      "evt_onetime",
		Type:    "invoice.payment_succeeded",
		Created: time.Now().UTC().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
	if err := provider.processWebhookEvent(ctx, event); err != nil {
		t.Fatalf("Invoice event failed: %v", err)
	}

	rec, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	wantEnd := checkoutAt.Add(30 * 24 * time.Hour)
	if rec.SubscriptionEnd == nil || !rec.SubscriptionEnd.Equal(wantEnd) {
		t.Errorf("Expected end date unchanged at %v, got %v", wantEnd, rec.SubscriptionEnd)
	}
	if !rec.UpdatedAt.Equal(checkoutAt) {
		t.Errorf("Expected UpdatedAt unchanged at %v, got %v", checkoutAt, rec.UpdatedAt)
	}
}

func TestInvoicePaymentSucceeded_UnknownCustomerAcknowledged(t *testing.T) {
	provider, _ := newTestProvider(t)
	ctx := context.Background()

	// Unknown customer must not surface an error: Stripe would retry
	// forever and nothing would change
	err := provider.processWebhookEvent(ctx, invoiceEvent(t, "cus_unknown", time.Now()))
	if err != nil {
		t.Fatalf("Expected nil error for unknown customer, got %v", err)
	}
}

func TestSubscriptionDeleted_CancelsSubscription(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()
	checkoutAt := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	deleteAt := time.Now().UTC().Truncate(time.Second)

	if err := provider.processWebhookEvent(ctx, checkoutEvent(t, testAccountID, checkoutAt)); err != nil {
		t.Fatalf("Checkout event failed: %v", err)
	}
	if err := provider.processWebhookEvent(ctx, subscriptionDeletedEvent(t, testCustomerID, deleteAt)); err != nil {
		t.Fatalf("Deletion event failed: %v", err)
	}

	rec, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.SubscriptionStatus != gogate.SubscriptionCanceled {
		t.Errorf("Expected status canceled, got %s", rec.SubscriptionStatus)
	}
}

func TestStaleCheckoutCannotResurrectCanceledSubscription(t *testing.T) {
	provider, store := newTestProvider(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	if err := provider.processWebhookEvent(ctx, checkoutEvent(t, testAccountID, base)); err != nil {
		t.Fatalf("Checkout event failed: %v", err)
	}
	if err := provider.processWebhookEvent(ctx, subscriptionDeletedEvent(t, testCustomerID, base.Add(10*time.Minute))); err != nil {
		t.Fatalf("Deletion event failed: %v", err)
	}

	// A redelivered checkout event older than the cancellation must not
	// reactivate the subscription
	stale := checkoutEvent(t, testAccountID, base.Add(5*time.Minute))
	if err := provider.processWebhookEvent(ctx, stale); err != nil {
		t.Fatalf("Stale event failed: %v", err)
	}

	rec, err := store.GetRecord(ctx, testAccountID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.SubscriptionStatus != gogate.SubscriptionCanceled {
		t.Errorf("Stale checkout resurrected the subscription: got %s", rec.SubscriptionStatus)
	}
}

func TestWebhookHandler_RejectsInvalidSignature(t *testing.T) {
	provider, store := newTestProvider(t)

	body := `{"type":"checkout.session.completed"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	rr := httptest.NewRecorder()

	provider.WebhookHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
	if _, err := store.GetRecord(context.Background(), testAccountID); !errors.Is(err, gogate.ErrRecordNotFound) {
		t.Errorf("Unsigned request changed state: err %v", err)
	}
}

func TestWebhookHandler_RejectsNonPOST(t *testing.T) {
	provider, _ := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rr := httptest.NewRecorder()

	provider.WebhookHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

func TestWebhookHandler_UnconfiguredSecret(t *testing.T) {
	store := memory.New()
	provider, err := NewProvider(Config{
		Config:       billing.Config{Store: store},
		StripeAPIKey: testAPIKey,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	provider, _ := newTestProvider(t)

	event := &stripe.Event{
		ID:      "evt_unknown",
		Type:    "customer.created",
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := provider.processWebhookEvent(context.Background(), event); err != nil {
		t.Fatalf("Expected unknown events to be ignored, got %v", err)
	}
}
