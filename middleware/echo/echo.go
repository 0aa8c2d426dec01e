// Package echo provides Echo middleware that gates routes on access state
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// decisionKey is the Echo context key the middleware stores the decision under
const decisionKey = "gogate:decision"

// AccountExtractor resolves the requesting account from an Echo context.
// Return an error or a zero account when the request has no valid session.
type AccountExtractor func(c echo.Context) (gogate.Account, error)

// Config holds middleware configuration
type Config struct {
	// Gate is the access gate instance (required)
	Gate *gogate.Gate

	// GetAccount resolves the account from the request (required)
	GetAccount AccountExtractor

	// LoginURL, when set, receives a redirect for unauthenticated
	// requests. If empty, the middleware responds 401 JSON.
	LoginURL string

	// RenewalURL, when set, receives a redirect when access is denied.
	// If empty, the middleware responds 402 JSON with the decision state.
	RenewalURL string

	// OnUnauthenticated overrides the unauthenticated response
	OnUnauthenticated func(c echo.Context) error

	// OnDenied overrides the denied response
	OnDenied func(c echo.Context, decision gogate.Decision) error
}

// Middleware creates an Echo middleware that denies requests unless the
// account is subscribed or inside its trial window
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("gogate/echo: Config.Gate is required")
	}
	if cfg.GetAccount == nil {
		panic("gogate/echo: Config.GetAccount is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account, err := cfg.GetAccount(c)
			if err != nil || account.ID == "" {
				if cfg.OnUnauthenticated != nil {
					return cfg.OnUnauthenticated(c)
				}
				if cfg.LoginURL != "" {
					return c.Redirect(http.StatusFound, cfg.LoginURL)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			decision := cfg.Gate.Check(c.Request().Context(), account)
			if !decision.Allowed() {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, decision)
				}
				if cfg.RenewalURL != "" {
					return c.Redirect(http.StatusFound, cfg.RenewalURL)
				}
				return c.JSON(http.StatusPaymentRequired, map[string]string{
					"error": "subscription required",
					"state": string(decision.State),
				})
			}

			c.Set(decisionKey, decision)
			return next(c)
		}
	}
}

// DecisionFromContext returns the access decision the middleware stored
// for this request.
func DecisionFromContext(c echo.Context) (gogate.Decision, bool) {
	decision, ok := c.Get(decisionKey).(gogate.Decision)
	return decision, ok
}
