package api

import "time"

// StatusResponse represents the access state for an account. Clients use
// it to drive trial countdowns and renewal prompts; the server-side guard
// remains the authority on every request.
type StatusResponse struct {
	AccountID             string        `json:"account_id"`
	State                 string        `json:"state"` // "subscribed", "trial_active", "trial_expired"
	RemainingTrialMinutes int           `json:"remaining_trial_minutes"`
	Subscription          *Subscription `json:"subscription,omitempty"`
}

// Subscription carries the billing view of the account
type Subscription struct {
	Status string     `json:"status"` // "none", "active", "canceled"
	EndsAt *time.Time `json:"ends_at,omitempty"`
}
