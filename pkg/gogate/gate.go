package gogate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTrialWindow is the free-trial length when none is configured
	DefaultTrialWindow = time.Hour

	// DefaultLookupTimeout bounds the record lookup inside Check
	DefaultLookupTimeout = 2 * time.Second

	defaultCacheTTL    = 10 * time.Second
	defaultMaxRecords  = 10000
	defaultCBThreshold = 5
	defaultCBReset     = 30 * time.Second
)

// Gate classifies accounts into subscribed, trial-active or trial-expired.
// Evaluate is pure; Check adds the record lookup, cache and fail-closed
// degradation that route guards and the status API share.
//
// The gate never writes subscription state. Subscription fields are written
// exclusively by the billing webhook handler, login timestamps by RecordLogin.
type Gate struct {
	store   Store
	config  Config
	cache   Cache
	breaker CircuitBreaker
	group   singleflight.Group
	clock   Clock
	logger  Logger
	metrics Metrics
}

// New creates a gate backed by the given record store
func New(store Store, config Config) (*Gate, error) {
	if store == nil {
		return nil, ErrStoreUnavailable
	}

	// Set defaults
	if config.TrialWindow <= 0 {
		config.TrialWindow = DefaultTrialWindow
	}
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	g := &Gate{
		store:   store,
		config:  config,
		clock:   config.Clock,
		logger:  config.Logger,
		metrics: config.Metrics,
	}

	g.cache = NewNoopCache()
	if cc := config.CacheConfig; cc != nil && cc.Enabled {
		if cc.TTL <= 0 {
			cc.TTL = defaultCacheTTL
		}
		if cc.MaxRecords <= 0 {
			cc.MaxRecords = defaultMaxRecords
		}
		g.cache = NewLRUCache(cc.MaxRecords)
	}

	if cb := config.CircuitBreakerConfig; cb != nil && cb.Enabled {
		threshold := cb.FailureThreshold
		if threshold <= 0 {
			threshold = defaultCBThreshold
		}
		reset := cb.ResetTimeout
		if reset <= 0 {
			reset = defaultCBReset
		}
		g.breaker = newCircuitBreaker(threshold, reset, func(state CircuitBreakerState) {
			g.metrics.RecordCircuitBreakerStateChange(string(state))
			g.logger.Warn("record store circuit state changed",
				Field{Key: "state", Value: string(state)})
		})
	}

	return g, nil
}

// TrialWindow returns the configured free-trial length
func (g *Gate) TrialWindow() time.Duration {
	return g.config.TrialWindow
}

// Evaluate classifies an account from a record snapshot and the current
// time. It is pure and total: a nil record is treated as an empty one and
// classification falls back to the account creation time. Callers that hit
// a lookup failure must not call Evaluate with a guessed record; they fail
// closed instead (see Check).
func (g *Gate) Evaluate(rec *AccessRecord, accountCreatedAt, now time.Time) AccessState {
	if rec != nil && rec.SubscriptionStatus == SubscriptionActive {
		if rec.SubscriptionEnd == nil || !rec.SubscriptionEnd.Before(now) {
			return StateSubscribed
		}
		// A lapsed subscription does not fall back to trial eligibility.
		return StateTrialExpired
	}

	ref := trialReference(rec, accountCreatedAt)
	if ref.IsZero() {
		// No usable timestamp at all. Fail closed.
		return StateTrialExpired
	}

	if now.Sub(ref) <= g.config.TrialWindow {
		return StateTrialActive
	}
	return StateTrialExpired
}

// RemainingTrialMinutes reports the whole minutes left in the trial window,
// clamped at zero. Display only; gating always goes through Evaluate.
func (g *Gate) RemainingTrialMinutes(rec *AccessRecord, accountCreatedAt, now time.Time) int {
	ref := trialReference(rec, accountCreatedAt)
	if ref.IsZero() {
		return 0
	}

	remaining := g.config.TrialWindow - now.Sub(ref)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Minutes())
}

// trialReference picks the instant the trial window is measured from:
// the last login when one was recorded, the account creation time otherwise.
func trialReference(rec *AccessRecord, accountCreatedAt time.Time) time.Time {
	if rec != nil && rec.LastLogin != nil && !rec.LastLogin.IsZero() {
		return *rec.LastLogin
	}
	return accountCreatedAt
}

// Check performs a storage-backed evaluation for an authenticated account.
// It never returns an error: any lookup failure (store error, timeout, open
// circuit) degrades to StateTrialExpired so route guards cannot fail open.
func (g *Gate) Check(ctx context.Context, account Account) Decision {
	start := time.Now()
	defer func() {
		g.metrics.RecordCheckDuration(time.Since(start))
	}()

	if account.ID == "" {
		return g.failClosed(account, "invalid_account", ErrInvalidAccount)
	}

	now := g.clock.Now()
	ttl := g.cacheTTL()

	if ttl > 0 {
		if rec, ok := g.cache.GetRecord(account.ID); ok {
			g.metrics.RecordCacheHit()
			return g.decide(rec, account, now)
		}
		g.metrics.RecordCacheMiss()
	}

	rec, err := g.lookup(ctx, account.ID)
	switch {
	case err == nil:
		if ttl > 0 {
			g.cache.SetRecord(account.ID, rec, ttl)
		}
		return g.decide(rec, account, now)

	case errors.Is(err, ErrRecordNotFound):
		// First login has not created the record yet. The documented
		// fallback applies: measure the trial from account creation.
		return g.decide(nil, account, now)

	case errors.Is(err, ErrCircuitOpen):
		return g.failClosed(account, "circuit_open", err)

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return g.failClosed(account, "timeout", err)

	default:
		return g.failClosed(account, "store_error", err)
	}
}

// RecordLogin refreshes the account's last-login timestamp. First login
// creates the record. Subscription fields are never touched.
func (g *Gate) RecordLogin(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrInvalidAccount
	}

	start := time.Now()
	err := g.store.RecordLogin(ctx, accountID, g.clock.Now())
	g.metrics.RecordStoreOperation("record_login", time.Since(start), err)
	if err != nil {
		return err
	}

	g.cache.InvalidateRecord(accountID)
	g.logger.Debug("login recorded", Field{Key: "account_id", Value: accountID})
	return nil
}

// Record returns the raw access record for an account, bypassing the cache.
// Used by the status API and reconciliation jobs.
func (g *Gate) Record(ctx context.Context, accountID string) (*AccessRecord, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	return g.store.GetRecord(ctx, accountID)
}

// Invalidate drops any cached record for the account. Called after webhook
// writes so the next check sees fresh subscription state.
func (g *Gate) Invalidate(accountID string) {
	g.cache.InvalidateRecord(accountID)
}

// lookup fetches the record with the configured timeout, collapsed across
// concurrent checks for the same account, optionally behind the breaker.
func (g *Gate) lookup(ctx context.Context, accountID string) (*AccessRecord, error) {
	v, err, _ := g.group.Do(accountID, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(ctx, g.config.LookupTimeout)
		defer cancel()

		var rec *AccessRecord
		fetch := func() error {
			start := time.Now()
			var ferr error
			rec, ferr = g.store.GetRecord(lctx, accountID)
			g.metrics.RecordStoreOperation("get_record", time.Since(start), ferr)
			if errors.Is(ferr, ErrRecordNotFound) {
				// Absence is a valid answer, not a store failure; it must
				// not trip the breaker.
				rec = nil
				return nil
			}
			return ferr
		}

		var err error
		if g.breaker != nil {
			err = g.breaker.Execute(lctx, fetch)
		} else {
			err = fetch()
		}
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrRecordNotFound
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AccessRecord), nil
}

func (g *Gate) decide(rec *AccessRecord, account Account, now time.Time) Decision {
	state := g.Evaluate(rec, account.CreatedAt, now)
	g.metrics.RecordEvaluation(state)
	return Decision{
		State:                 state,
		RemainingTrialMinutes: g.RemainingTrialMinutes(rec, account.CreatedAt, now),
		Record:                rec,
	}
}

func (g *Gate) failClosed(account Account, reason string, err error) Decision {
	g.metrics.RecordFailClosed(reason)
	g.metrics.RecordEvaluation(StateTrialExpired)
	g.logger.Warn("access check failed closed",
		Field{Key: "account_id", Value: account.ID},
		Field{Key: "reason", Value: reason},
		Field{Key: "error", Value: err})
	return Decision{State: StateTrialExpired}
}

func (g *Gate) cacheTTL() time.Duration {
	if cc := g.config.CacheConfig; cc != nil && cc.Enabled {
		return cc.TTL
	}
	return 0
}
