// Package postgres provides a PostgreSQL implementation of the gogate.Store
// interface. Field-scoped upserts with ON CONFLICT keep the login flow and
// the webhook handler from clobbering each other's columns.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// Store implements gogate.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:   pool,
		config: config,
	}, nil
}

// InitSchema creates the access_records table and indexes if they don't exist
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS access_records (
			account_id          TEXT PRIMARY KEY,
			last_login          TIMESTAMPTZ,
			subscription_status TEXT NOT NULL DEFAULT 'none',
			subscription_start  TIMESTAMPTZ,
			subscription_end    TIMESTAMPTZ,
			stripe_customer_id  TEXT,
			subscription_id     TEXT,
			checkout_session_id TEXT,
			updated_at          TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_access_records_customer
			ON access_records (stripe_customer_id)
			WHERE stripe_customer_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetRecord implements gogate.Store
func (s *Store) GetRecord(ctx context.Context, accountID string) (*gogate.AccessRecord, error) {
	return s.scanRecord(ctx,
		`SELECT account_id, last_login, subscription_status, subscription_start,
			subscription_end, stripe_customer_id, subscription_id,
			checkout_session_id, updated_at
			FROM access_records WHERE account_id = $1`,
		accountID)
}

// RecordLogin implements gogate.Store
func (s *Store) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_records (account_id, last_login)
			VALUES ($1, $2)
			ON CONFLICT (account_id) DO UPDATE SET
				last_login = EXCLUDED.last_login`,
		accountID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// ApplySubscription implements gogate.Store. COALESCE keeps unset change
// fields at their stored values, giving last-write-wins per field.
func (s *Store) ApplySubscription(ctx context.Context, change *gogate.SubscriptionChange) error {
	if change == nil || change.AccountID == "" {
		return fmt.Errorf("invalid subscription change")
	}

	var status *string
	if change.Status != "" {
		v := string(change.Status)
		status = &v
	}
	var subID, custID *string
	if change.SubscriptionID != "" {
		subID = &change.SubscriptionID
	}
	if change.CustomerID != "" {
		custID = &change.CustomerID
	}
	var updatedAt *time.Time
	if !change.EventTimestamp.IsZero() {
		t := change.EventTimestamp.UTC()
		updatedAt = &t
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_records (account_id, subscription_status,
			subscription_start, subscription_end, stripe_customer_id,
			subscription_id, updated_at)
			VALUES ($1, COALESCE($2, 'none'), $3, $4, $5, $6, $7)
			ON CONFLICT (account_id) DO UPDATE SET
				subscription_status = COALESCE($2, access_records.subscription_status),
				subscription_start  = COALESCE($3, access_records.subscription_start),
				subscription_end    = COALESCE($4, access_records.subscription_end),
				stripe_customer_id  = COALESCE($5, access_records.stripe_customer_id),
				subscription_id     = COALESCE($6, access_records.subscription_id),
				updated_at          = COALESCE($7, access_records.updated_at)`,
		change.AccountID, status, change.StartDate, change.EndDate,
		custID, subID, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to apply subscription change: %w", err)
	}
	return nil
}

// FindByCustomer implements gogate.Store
func (s *Store) FindByCustomer(ctx context.Context, customerID string) (*gogate.AccessRecord, error) {
	return s.scanRecord(ctx,
		`SELECT account_id, last_login, subscription_status, subscription_start,
			subscription_end, stripe_customer_id, subscription_id,
			checkout_session_id, updated_at
			FROM access_records WHERE stripe_customer_id = $1`,
		customerID)
}

// SetCheckoutSession implements gogate.Store
func (s *Store) SetCheckoutSession(ctx context.Context, accountID, sessionID string) error {
	if accountID == "" {
		return fmt.Errorf("invalid account id")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO access_records (account_id, checkout_session_id)
			VALUES ($1, $2)
			ON CONFLICT (account_id) DO UPDATE SET
				checkout_session_id = EXCLUDED.checkout_session_id`,
		accountID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set checkout session: %w", err)
	}
	return nil
}

// Now implements gogate.TimeSource using the database clock
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var t time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("failed to query database time: %w", err)
	}
	return t.UTC(), nil
}

func (s *Store) scanRecord(ctx context.Context, query, arg string) (*gogate.AccessRecord, error) {
	var rec gogate.AccessRecord
	var customerID, subscriptionID, checkoutSessionID *string
	var updatedAt *time.Time

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&rec.AccountID,
		&rec.LastLogin,
		&rec.SubscriptionStatus,
		&rec.SubscriptionStart,
		&rec.SubscriptionEnd,
		&customerID,
		&subscriptionID,
		&checkoutSessionID,
		&updatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, gogate.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access record: %w", err)
	}

	if customerID != nil {
		rec.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		rec.SubscriptionID = *subscriptionID
	}
	if checkoutSessionID != nil {
		rec.CheckoutSessionID = *checkoutSessionID
	}
	// A record that never saw a subscription write has no update timestamp.
	// Webhook staleness checks rely on it staying zero.
	if updatedAt != nil {
		rec.UpdatedAt = updatedAt.UTC()
	}
	return &rec, nil
}
