// Package memory provides an in-memory implementation of the gogate.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// Store implements gogate.Store using in-memory maps
type Store struct {
	mu         sync.RWMutex
	records    map[string]*gogate.AccessRecord
	byCustomer map[string]string // stripe customer id -> account id
}

// New creates a new in-memory store adapter
func New() *Store {
	return &Store{
		records:    make(map[string]*gogate.AccessRecord),
		byCustomer: make(map[string]string),
	}
}

// GetRecord implements gogate.Store
func (s *Store) GetRecord(ctx context.Context, accountID string) (*gogate.AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[accountID]
	if !ok {
		return nil, gogate.ErrRecordNotFound
	}

	// Return a copy to prevent external mutations
	recCopy := *rec
	return &recCopy, nil
}

// RecordLogin implements gogate.Store. Only the login timestamp is touched;
// subscription fields written by the webhook handler are preserved.
func (s *Store) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureRecord(accountID)
	login := at
	rec.LastLogin = &login
	return nil
}

// ApplySubscription implements gogate.Store. Only non-zero fields of the
// change are written, so concurrent login writes are never clobbered.
func (s *Store) ApplySubscription(ctx context.Context, change *gogate.SubscriptionChange) error {
	if change == nil || change.AccountID == "" {
		return fmt.Errorf("invalid subscription change")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureRecord(change.AccountID)

	if change.Status != "" {
		rec.SubscriptionStatus = change.Status
	}
	if change.SubscriptionID != "" {
		rec.SubscriptionID = change.SubscriptionID
	}
	if change.CustomerID != "" {
		rec.StripeCustomerID = change.CustomerID
		s.byCustomer[change.CustomerID] = change.AccountID
	}
	if change.StartDate != nil {
		start := *change.StartDate
		rec.SubscriptionStart = &start
	}
	if change.EndDate != nil {
		end := *change.EndDate
		rec.SubscriptionEnd = &end
	}
	if !change.EventTimestamp.IsZero() {
		rec.UpdatedAt = change.EventTimestamp
	}
	return nil
}

// FindByCustomer implements gogate.Store
func (s *Store) FindByCustomer(ctx context.Context, customerID string) (*gogate.AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.byCustomer[customerID]
	if !ok {
		return nil, gogate.ErrRecordNotFound
	}
	rec, ok := s.records[accountID]
	if !ok {
		return nil, gogate.ErrRecordNotFound
	}

	recCopy := *rec
	return &recCopy, nil
}

// SetCheckoutSession implements gogate.Store
func (s *Store) SetCheckoutSession(ctx context.Context, accountID, sessionID string) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensureRecord(accountID)
	rec.CheckoutSessionID = sessionID
	return nil
}

// ensureRecord returns the record for the account, creating an empty one
// if needed. Caller must hold the write lock.
func (s *Store) ensureRecord(accountID string) *gogate.AccessRecord {
	rec, ok := s.records[accountID]
	if !ok {
		rec = &gogate.AccessRecord{
			AccountID:          accountID,
			SubscriptionStatus: gogate.SubscriptionNone,
		}
		s.records[accountID] = rec
	}
	return rec
}
