// Package identity resolves the requesting account from an HTTP request.
// The access gate trusts whatever the authenticator returns; session
// validation is the authenticator's job, access state is the gate's.
package identity

import (
	"errors"
	"net/http"

	"github.com/mihaimyh/gogate/pkg/gogate"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("no authenticated account")

// Authenticator extracts the authenticated account from a request.
type Authenticator interface {
	// Authenticate returns the account for the request, or
	// ErrUnauthenticated when the request has no valid session.
	Authenticate(r *http.Request) (gogate.Account, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(r *http.Request) (gogate.Account, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (gogate.Account, error) {
	return f(r)
}
