// Package redis provides a Redis implementation of the gogate.Store
// interface. Records are stored as hashes so the two uncoordinated writers
// (login flow, webhook handler) each touch only their own fields.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

const (
	fieldAccountID       = "account_id"
	fieldLastLogin       = "last_login"
	fieldStatus          = "subscription_status"
	fieldSubStart        = "subscription_start"
	fieldSubEnd          = "subscription_end"
	fieldCustomerID      = "stripe_customer_id"
	fieldSubscriptionID  = "subscription_id"
	fieldCheckoutSession = "checkout_session_id"
	fieldUpdatedAt       = "updated_at"
)

// Store implements gogate.Store using Redis
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gogate:")
	KeyPrefix string

	// RecordTTL is the TTL for record keys (0 = no expiration)
	RecordTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "gogate:",
		RecordTTL: 0, // records don't expire
	}
}

// New creates a new Redis store adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "gogate:"
	}

	return &Store{
		client: client,
		config: config,
	}, nil
}

// GetRecord implements gogate.Store
func (s *Store) GetRecord(ctx context.Context, accountID string) (*gogate.AccessRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gogate.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, gogate.ErrRecordNotFound
	}
	return recordFromFields(accountID, fields)
}

// RecordLogin implements gogate.Store
func (s *Store) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	key := s.recordKey(accountID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		fieldAccountID, accountID,
		fieldLastLogin, at.UTC().Format(time.RFC3339Nano),
	)
	pipe.HSetNX(ctx, key, fieldStatus, string(gogate.SubscriptionNone))
	if s.config.RecordTTL > 0 {
		pipe.Expire(ctx, key, s.config.RecordTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", gogate.ErrStoreUnavailable, err)
	}
	return nil
}

// ApplySubscription implements gogate.Store
func (s *Store) ApplySubscription(ctx context.Context, change *gogate.SubscriptionChange) error {
	if change == nil || change.AccountID == "" {
		return fmt.Errorf("invalid subscription change")
	}

	key := s.recordKey(change.AccountID)
	values := []interface{}{fieldAccountID, change.AccountID}

	if change.Status != "" {
		values = append(values, fieldStatus, string(change.Status))
	}
	if change.SubscriptionID != "" {
		values = append(values, fieldSubscriptionID, change.SubscriptionID)
	}
	if change.CustomerID != "" {
		values = append(values, fieldCustomerID, change.CustomerID)
	}
	if change.StartDate != nil {
		values = append(values, fieldSubStart, change.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if change.EndDate != nil {
		values = append(values, fieldSubEnd, change.EndDate.UTC().Format(time.RFC3339Nano))
	}
	if !change.EventTimestamp.IsZero() {
		values = append(values, fieldUpdatedAt, change.EventTimestamp.UTC().Format(time.RFC3339Nano))
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	if change.CustomerID != "" {
		pipe.Set(ctx, s.customerKey(change.CustomerID), change.AccountID, s.config.RecordTTL)
	}
	if s.config.RecordTTL > 0 {
		pipe.Expire(ctx, key, s.config.RecordTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", gogate.ErrStoreUnavailable, err)
	}
	return nil
}

// FindByCustomer implements gogate.Store
func (s *Store) FindByCustomer(ctx context.Context, customerID string) (*gogate.AccessRecord, error) {
	accountID, err := s.client.Get(ctx, s.customerKey(customerID)).Result()
	if err == redis.Nil {
		return nil, gogate.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gogate.ErrStoreUnavailable, err)
	}
	return s.GetRecord(ctx, accountID)
}

// SetCheckoutSession implements gogate.Store
func (s *Store) SetCheckoutSession(ctx context.Context, accountID, sessionID string) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	key := s.recordKey(accountID)
	if err := s.client.HSet(ctx, key,
		fieldAccountID, accountID,
		fieldCheckoutSession, sessionID,
	).Err(); err != nil {
		return fmt.Errorf("%w: %v", gogate.ErrStoreUnavailable, err)
	}
	return nil
}

// Now implements gogate.TimeSource using the Redis TIME command, so webhook
// staleness comparisons use the storage engine's clock rather than the
// application server's.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", gogate.ErrStoreUnavailable, err)
	}
	return t.UTC(), nil
}

func (s *Store) recordKey(accountID string) string {
	return s.config.KeyPrefix + "record:" + accountID
}

func (s *Store) customerKey(customerID string) string {
	return s.config.KeyPrefix + "customer:" + customerID
}

func recordFromFields(accountID string, fields map[string]string) (*gogate.AccessRecord, error) {
	rec := &gogate.AccessRecord{
		AccountID:          accountID,
		SubscriptionStatus: gogate.SubscriptionNone,
	}
	if id := fields[fieldAccountID]; id != "" {
		rec.AccountID = id
	}
	if v := fields[fieldStatus]; v != "" {
		rec.SubscriptionStatus = gogate.SubscriptionStatus(v)
	}
	rec.StripeCustomerID = fields[fieldCustomerID]
	rec.SubscriptionID = fields[fieldSubscriptionID]
	rec.CheckoutSessionID = fields[fieldCheckoutSession]

	var err error
	if rec.LastLogin, err = parseTimePtr(fields[fieldLastLogin]); err != nil {
		return nil, err
	}
	if rec.SubscriptionStart, err = parseTimePtr(fields[fieldSubStart]); err != nil {
		return nil, err
	}
	if rec.SubscriptionEnd, err = parseTimePtr(fields[fieldSubEnd]); err != nil {
		return nil, err
	}
	if v := fields[fieldUpdatedAt]; v != "" {
		t, perr := time.Parse(time.RFC3339Nano, v)
		if perr != nil {
			return nil, fmt.Errorf("malformed updated_at for %s: %w", accountID, perr)
		}
		rec.UpdatedAt = t
	}
	return rec, nil
}

func parseTimePtr(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("malformed timestamp %q: %w", v, err)
	}
	return &t, nil
}
