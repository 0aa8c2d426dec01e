// Package fiber provides Fiber middleware that gates routes on access state
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// decisionKey is the Fiber locals key the middleware stores the decision under
const decisionKey = "gogate:decision"

// AccountExtractor resolves the requesting account from a Fiber context.
// Return an error or a zero account when the request has no valid session.
type AccountExtractor func(c *fiber.Ctx) (gogate.Account, error)

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
	OnUnauthenticated func(c *fiber.Ctx) error

	// OnDenied overrides the denied response
	OnDenied func(c *fiber.Ctx, decision gogate.Decision) error
}

// Middleware creates a Fiber middleware that denies requests unless the
// account is subscribed or inside its trial window
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("gogate/fiber: Config.Gate is required")
	}
	if cfg.GetAccount == nil {
		panic("gogate/fiber: Config.GetAccount is required")
	}

	return func(c *fiber.Ctx) error {
		account, err := cfg.GetAccount(c)
		if err != nil || account.ID == "" {
			if cfg.OnUnauthenticated != nil {
				return cfg.OnUnauthenticated(c)
			}
			if cfg.LoginURL != "" {
				return c.Redirect(cfg.LoginURL, fiber.StatusFound)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		decision := cfg.Gate.Check(c.UserContext(), account)
		if !decision.Allowed() {
			if cfg.OnDenied != nil {
				return cfg.OnDenied(c, decision)
			}
			if cfg.RenewalURL != "" {
				return c.Redirect(cfg.RenewalURL, fiber.StatusFound)
			}
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "subscription required",
				"state": string(decision.State),
			})
		}

		c.Locals(decisionKey, decision)
		return c.Next()
	}
}

// DecisionFromContext returns the access decision the middleware stored
// for this request.
func DecisionFromContext(c *fiber.Ctx) (gogate.Decision, bool) {
	decision, ok := c.Locals(decisionKey).(gogate.Decision)
	return decision, ok
}
