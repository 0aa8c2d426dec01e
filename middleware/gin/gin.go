// Package gin provides Gin middleware that gates routes on access state
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// decisionKey is the Gin context key the middleware stores the decision under
const decisionKey = "gogate:decision"

// AccountExtractor resolves the requesting account from a Gin context.
// Return an error or a zero account when the request has no valid session.
type AccountExtractor func(c *gongin.Context) (gogate.Account, error)

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
	OnUnauthenticated func(c *gongin.Context)

	// OnDenied overrides the denied response
	OnDenied func(c *gongin.Context, decision gogate.Decision)
}

// Middleware creates a Gin middleware that denies requests unless the
// account is subscribed or inside its trial window
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("gogate/gin: Config.Gate is required")
	}
	if cfg.GetAccount == nil {
		panic("gogate/gin: Config.GetAccount is required")
	}

	return func(c *gongin.Context) {
		account, err := cfg.GetAccount(c)
		if err != nil || account.ID == "" {
			if cfg.OnUnauthenticated != nil {
				cfg.OnUnauthenticated(c)
			} else if cfg.LoginURL != "" {
				c.Redirect(http.StatusFound, cfg.LoginURL)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			c.Abort()
			return
		}

		decision := cfg.Gate.Check(c.Request.Context(), account)
		if !decision.Allowed() {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, decision)
			} else if cfg.RenewalURL != "" {
				c.Redirect(http.StatusFound, cfg.RenewalURL)
			} else {
				c.JSON(http.StatusPaymentRequired, gongin.H{
					"error": "subscription required",
					"state": string(decision.State),
				})
			}
			c.Abort()
			return
		}

		c.Set(decisionKey, decision)
		c.Next()
	}
}

// DecisionFromContext returns the access decision the middleware stored
// for this request.
func DecisionFromContext(c *gongin.Context) (gogate.Decision, bool) {
	value, exists := c.Get(decisionKey)
	if !exists {
		return gogate.Decision{}, false
	}
	decision, ok := value.(gogate.Decision)
	return decision, ok
}
