// Package firestore provides a Firestore implementation of the gogate.Store
// interface. Field-scoped writes use Set with MergeAll so the login flow and
// the webhook handler never clobber each other's fields.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// Store implements gogate.Store using Google Cloud Firestore
type Store struct {
	client            *firestore.Client
	recordsCollection string
}

// Config holds Firestore store configuration
type Config struct {
	// RecordsCollection is the Firestore collection for access records
	// Default: "access_records"
	RecordsCollection string
}

// New creates a new Firestore store adapter
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.RecordsCollection == "" {
		config.RecordsCollection = "access_records"
	}

	return &Store{
		client:            client,
		recordsCollection: config.RecordsCollection,
	}, nil
}

// GetRecord implements gogate.Store
func (s *Store) GetRecord(ctx context.Context, accountID string) (*gogate.AccessRecord, error) {
	doc := s.client.Collection(s.recordsCollection).Doc(accountID)
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, gogate.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get access record: %w", err)
	}

	if !snap.Exists() {
		return nil, gogate.ErrRecordNotFound
	}

	return recordFromData(accountID, snap.Data()), nil
}

// RecordLogin implements gogate.Store
func (s *Store) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	doc := s.client.Collection(s.recordsCollection).Doc(accountID)
	_, err := doc.Set(ctx, map[string]interface{}{
		"accountId": accountID,
		"lastLogin": at.UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// ApplySubscription implements gogate.Store
func (s *Store) ApplySubscription(ctx context.Context, change *gogate.SubscriptionChange) error {
	if change == nil || change.AccountID == "" {
		return fmt.Errorf("invalid subscription change")
	}

	data := map[string]interface{}{
		"accountId": change.AccountID,
	}
	if change.Status != "" {
		data["subscriptionStatus"] = string(change.Status)
	}
	if change.SubscriptionID != "" {
		data["subscriptionId"] = change.SubscriptionID
	}
	if change.CustomerID != "" {
		data["stripeCustomerId"] = change.CustomerID
	}
	if change.StartDate != nil {
		data["subscriptionStart"] = change.StartDate.UTC()
	}
	if change.EndDate != nil {
		data["subscriptionEnd"] = change.EndDate.UTC()
	}
	if !change.EventTimestamp.IsZero() {
		data["updatedAt"] = change.EventTimestamp.UTC()
	}

	doc := s.client.Collection(s.recordsCollection).Doc(change.AccountID)
	if _, err := doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to apply subscription change: %w", err)
	}
	return nil
}

// FindByCustomer implements gogate.Store
func (s *Store) FindByCustomer(ctx context.Context, customerID string) (*gogate.AccessRecord, error) {
	iter := s.client.Collection(s.recordsCollection).
		Where("stripeCustomerId", "==", customerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, gogate.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query by customer id: %w", err)
	}

	return recordFromData(snap.Ref.ID, snap.Data()), nil
}

// SetCheckoutSession implements gogate.Store
func (s *Store) SetCheckoutSession(ctx context.Context, accountID, sessionID string) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	doc := s.client.Collection(s.recordsCollection).Doc(accountID)
	_, err := doc.Set(ctx, map[string]interface{}{
		"accountId":         accountID,
		"checkoutSessionId": sessionID,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set checkout session: %w", err)
	}
	return nil
}

func recordFromData(accountID string, data map[string]interface{}) *gogate.AccessRecord {
	rec := &gogate.AccessRecord{
		AccountID:          accountID,
		SubscriptionStatus: gogate.SubscriptionNone,
	}

	if v := getString(data, "subscriptionStatus"); v != "" {
		rec.SubscriptionStatus = gogate.SubscriptionStatus(v)
	}
	rec.StripeCustomerID = getString(data, "stripeCustomerId")
	rec.SubscriptionID = getString(data, "subscriptionId")
	rec.CheckoutSessionID = getString(data, "checkoutSessionId")
	rec.LastLogin = getTimePtr(data, "lastLogin")
	rec.SubscriptionStart = getTimePtr(data, "subscriptionStart")
	rec.SubscriptionEnd = getTimePtr(data, "subscriptionEnd")
	if t, ok := data["updatedAt"].(time.Time); ok {
		rec.UpdatedAt = t
	}
	return rec
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTimePtr(data map[string]interface{}, key string) *time.Time {
	if t, ok := data[key].(time.Time); ok && !t.IsZero() {
		return &t
	}
	return nil
}
