package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// Config holds configuration for the access status handler
type Config struct {
	// Gate is the access gate instance (required)
	Gate *gogate.Gate

	// GetAccount resolves the requesting account (required). Return a
	// zero account for unauthenticated requests.
	GetAccount func(*http.Request) (gogate.Account, error)

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Gate == nil {
		return fmt.Errorf("gate is required")
	}
	if c.GetAccount == nil {
		return fmt.Errorf("getAccount is required")
	}
	return nil
}

// NewHandler creates a new status handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Handler{
		config: config,
	}, nil
}
