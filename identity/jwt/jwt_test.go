package jwt

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mihaimyh/gogate/identity"
	"github.com/mihaimyh/gogate/pkg/gogate"
)

var testSecret = []byte("test-secret-key")

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := New(Config{Secret: testSecret, CookieName: "session"})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	return v
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)
	created := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	account := gogate.Account{ID: "user-1", Email: "u@example.com", CreatedAt: created}

	token, err := v.Issue(account, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	got, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if got.ID != account.ID || got.Email != account.Email {
		t.Errorf("Account mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected creation time %v, got %v", created, got.CreatedAt)
	}
}

func TestVerifyToken_FallsBackToIssuedAt(t *testing.T) {
	v := newTestVerifier(t)
	account := gogate.Account{ID: "user-1"}

	token, err := v.Issue(account, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	got, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to fall back to the issue time")
	}
}

func TestVerifyToken_RejectsExpired(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue(gogate.Account{ID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := v.VerifyToken(token); !errors.Is(err, identity.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for expired token, got %v", err)
	}
}

func TestVerifyToken_RejectsWrongSecret(t *testing.T) {
	other, err := New(Config{Secret: []byte("other-secret")})
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}
	token, err := other.Issue(gogate.Account{ID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	v := newTestVerifier(t)
	if _, err := v.VerifyToken(token); !errors.Is(err, identity.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated for wrong secret, got %v", err)
	}
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	v := newTestVerifier(t)
	token, _ := v.Issue(gogate.Account{ID: "user-1"}, time.Hour)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	got, err := v.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != "user-1" {
		t.Errorf("Expected user-1, got %s", got.ID)
	}
}

func TestAuthenticate_SessionCookie(t *testing.T) {
	v := newTestVerifier(t)
	token, _ := v.Issue(gogate.Account{ID: "user-1"}, time.Hour)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})

	got, err := v.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != "user-1" {
		t.Errorf("Expected user-1, got %s", got.ID)
	}
}

func TestAuthenticate_NoToken(t *testing.T) {
	v := newTestVerifier(t)
	req := httptest.NewRequest("GET", "/", nil)

	if _, err := v.Authenticate(req); !errors.Is(err, identity.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}
