// Package jwt implements an identity.Authenticator backed by HS256
// session tokens.
package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mihaimyh/gogate/identity"
	"github.com/mihaimyh/gogate/pkg/gogate"
)

const defaultBearerPrefix = "Bearer "

// Claims are the token claims the verifier consumes. CreatedAt carries the
// account creation time for trial evaluation; sessions minted before that
// claim existed fall back to the registered IssuedAt.
type Claims struct {
	Email     string `json:"email,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	jwt.RegisteredClaims
}

// Config configures the token verifier.
type Config struct {
	// Secret is the HS256 signing secret. Required.
	Secret []byte

	// CookieName is an optional session cookie to read the token from
	// when no Authorization header is present.
	CookieName string

	// Leeway tolerates small clock skew between the token issuer and
	// this service when validating exp/nbf. Optional.
	Leeway time.Duration
}

// Verifier validates session tokens and maps their claims to accounts.
type Verifier struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

// New creates a Verifier. The secret must not be empty.
func New(config Config) (*Verifier, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("jwt: signing secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}

	return &Verifier{
		secret:     config.Secret,
		cookieName: config.CookieName,
		parser:     jwt.NewParser(opts...),
	}, nil
}

// Authenticate implements identity.Authenticator.
func (v *Verifier) Authenticate(r *http.Request) (gogate.Account, error) {
	tokenString := v.extractToken(r)
	if tokenString == "" {
		return gogate.Account{}, identity.ErrUnauthenticated
	}
	return v.VerifyToken(tokenString)
}

// VerifyToken validates a raw token string and returns the account it
// identifies.
func (v *Verifier) VerifyToken(tokenString string) (gogate.Account, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return gogate.Account{}, fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return gogate.Account{}, identity.ErrUnauthenticated
	}

	accountID := claims.Subject
	if accountID == "" {
		return gogate.Account{}, fmt.Errorf("%w: missing sub claim", identity.ErrUnauthenticated)
	}

	account := gogate.Account{
		ID:    accountID,
		Email: claims.Email,
	}
	if claims.CreatedAt > 0 {
		account.CreatedAt = time.Unix(claims.CreatedAt, 0).UTC()
	} else if claims.IssuedAt != nil {
		account.CreatedAt = claims.IssuedAt.Time.UTC()
	}

	return account, nil
}

// Issue mints a signed session token for the account, valid for ttl.
// Intended for tests and example servers; production deployments usually
// receive tokens from an external identity provider.
func (v *Verifier) Issue(account gogate.Account, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if !account.CreatedAt.IsZero() {
		claims.CreatedAt = account.CreatedAt.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *Verifier) extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, defaultBearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, defaultBearerPrefix))
	}
	if v.cookieName != "" {
		if cookie, err := r.Cookie(v.cookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}
