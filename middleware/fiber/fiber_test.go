package fiber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gogate/identity"
	"github.com/mihaimyh/gogate/pkg/gogate"
	"github.com/mihaimyh/gogate/storage/memory"
)

func setupTestGate(t *testing.T) (*gogate.Gate, *memory.Store) {
	t.Helper()

	store := memory.New()
	gate, err := gogate.New(store, gogate.Config{})
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	return gate, store
}

func headerExtractor(c *fiber.Ctx) (gogate.Account, error) {
	id := c.Get("X-Account-ID")
	if id == "" {
		return gogate.Account{}, identity.ErrUnauthenticated
	}
	return gogate.Account{ID: id, CreatedAt: time.Now().UTC().Add(-30 * 24 * time.Hour)}, nil
}

func runRequest(t *testing.T, gate *gogate.Gate, cfg Config, accountID string) *http.Response {
	t.Helper()

	cfg.Gate = gate
	if cfg.GetAccount == nil {
		cfg.GetAccount = headerExtractor
	}

	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/app", func(c *fiber.Ctx) error {
		if _, ok := DecisionFromContext(c); !ok {
			t.Error("Expected decision in fiber locals")
		}
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func TestMiddleware_TrialActivePassesThrough(t *testing.T) {
	gate, store := setupTestGate(t)
	if err := store.RecordLogin(context.Background(), "user1", time.Now().UTC().Add(-5*time.Minute)); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}

	resp := runRequest(t, gate, Config{}, "user1")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestMiddleware_ExpiredTrialDenied(t *testing.T) {
	gate, store := setupTestGate(t)
	if err := store.RecordLogin(context.Background(), "user1", time.Now().UTC().Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}

	resp := runRequest(t, gate, Config{}, "user1")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d", resp.StatusCode)
	}
}

func TestMiddleware_ExpiredTrialRedirects(t *testing.T) {
	gate, store := setupTestGate(t)
	if err := store.RecordLogin(context.Background(), "user1", time.Now().UTC().Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}

	resp := runRequest(t, gate, Config{RenewalURL: "/billing/renew"}, "user1")
	if resp.StatusCode != http.StatusFound {
		t.Errorf("Expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/billing/renew" {
		t.Errorf("Expected renewal redirect, got %q", loc)
	}
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	gate, _ := setupTestGate(t)

	resp := runRequest(t, gate, Config{}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}
