package gogate

import "time"

// Metrics defines the interface for tracking gate operations.
type Metrics interface {
	// RecordEvaluation records the outcome of an access check.
	RecordEvaluation(state AccessState)

	// RecordCheckDuration records the end-to-end latency of a storage-backed check.
	RecordCheckDuration(duration time.Duration)

	// RecordFailClosed records a check that degraded to StateTrialExpired
	// because the record lookup failed. The reason is one of "timeout",
	// "circuit_open", "store_error", "invalid_account".
	RecordFailClosed(reason string)

	// RecordCacheHit records a record-cache hit.
	RecordCacheHit()

	// RecordCacheMiss records a record-cache miss.
	RecordCacheMiss()

	// RecordStoreOperation records the duration and status of a store operation.
	RecordStoreOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvaluation(state AccessState)                                       {}
func (n *NoopMetrics) RecordCheckDuration(duration time.Duration)                               {}
func (n *NoopMetrics) RecordFailClosed(reason string)                                           {}
func (n *NoopMetrics) RecordCacheHit()                                                          {}
func (n *NoopMetrics) RecordCacheMiss()                                                         {}
func (n *NoopMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                             {}
