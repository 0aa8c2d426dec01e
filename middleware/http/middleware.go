// Package http provides HTTP middleware that gates routes on access state
package http

import (
	"context"
	"net/http"

	"github.com/mihaimyh/gogate/identity"
	"github.com/mihaimyh/gogate/pkg/gogate"
)

// AccountExtractor resolves the requesting account from an HTTP request.
// Return identity.ErrUnauthenticated when the request has no session.
type AccountExtractor func(r *http.Request) (gogate.Account, error)

// Config holds middleware configuration
type Config struct {
	// Gate is the access gate instance (required)
	Gate *gogate.Gate

	// Authenticator resolves the account from the request. Either
	// Authenticator or GetAccount is required; GetAccount wins when both
	// are set.
	Authenticator identity.Authenticator

	// GetAccount is a function alternative to Authenticator
	GetAccount AccountExtractor

	// LoginURL, when set, receives a redirect for unauthenticated
	// requests. If empty, the middleware responds 401 Unauthorized.
	LoginURL string

	// RenewalURL, when set, receives a redirect when access is denied.
	// If empty, the middleware responds 402 Payment Required.
	RenewalURL string

	// OnUnauthenticated overrides the unauthenticated response
	OnUnauthenticated func(w http.ResponseWriter, r *http.Request)

	// OnDenied overrides the denied response. The decision carries the
	// state that caused the denial.
	OnDenied func(w http.ResponseWriter, r *http.Request, decision gogate.Decision)
}

type contextKey string

// decisionKey is the context key the middleware stores the decision under
const decisionKey contextKey = "gogate:decision"

// DecisionFromContext returns the access decision the middleware stored
// for this request.
func DecisionFromContext(ctx context.Context) (gogate.Decision, bool) {
	decision, ok := ctx.Value(decisionKey).(gogate.Decision)
	return decision, ok
}

// WithDecision returns a copy of ctx carrying the decision. Exposed for
// tests and adapters.
func WithDecision(ctx context.Context, decision gogate.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, decision)
}

// Middleware creates an HTTP middleware that denies requests unless the
// account is subscribed or inside its trial window. Denial is the default:
// an unauthenticated request or a lookup failure never reaches the handler.
func Middleware(config Config) func(http.Handler) http.Handler {
	// Validate required configuration at startup (fail fast)
	if config.Gate == nil {
		panic("gogate/http: Config.Gate is required")
	}
	extract := config.GetAccount
	if extract == nil && config.Authenticator != nil {
		extract = config.Authenticator.Authenticate
	}
	if extract == nil {
		panic("gogate/http: Config.Authenticator or Config.GetAccount is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := extract(r)
			if err != nil || account.ID == "" {
				unauthenticated(config, w, r)
				return
			}

			decision := config.Gate.Check(r.Context(), account)
			if !decision.Allowed() {
				denied(config, w, r, decision)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), decision)))
		})
	}
}

// HandlerFunc creates an HTTP middleware (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func unauthenticated(config Config, w http.ResponseWriter, r *http.Request) {
	if config.OnUnauthenticated != nil {
		config.OnUnauthenticated(w, r)
		return
	}
	if config.LoginURL != "" {
		http.Redirect(w, r, config.LoginURL, http.StatusFound)
		return
	}
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func denied(config Config, w http.ResponseWriter, r *http.Request, decision gogate.Decision) {
	if config.OnDenied != nil {
		config.OnDenied(w, r, decision)
		return
	}
	if config.RenewalURL != "" {
		http.Redirect(w, r, config.RenewalURL, http.StatusFound)
		return
	}
	http.Error(w, "Payment Required", http.StatusPaymentRequired)
}
