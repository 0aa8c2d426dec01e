package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const maxAccountIDLen = 255

// Handler provides HTTP endpoints for access state inspection
type Handler struct {
	config Config
}

// GetStatus returns the account's access state as JSON. It runs the same
// check path as the route guards, so the response reflects exactly what a
// guarded request would see.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	account, err := h.config.GetAccount(r)
	if err != nil || account.ID == "" {
		h.handleError(w, r, fmt.Errorf("account not found"), http.StatusUnauthorized)
		return
	}
	if len(account.ID) > maxAccountIDLen {
		h.handleError(w, r, fmt.Errorf("invalid account ID format"), http.StatusBadRequest)
		return
	}

	decision := h.config.Gate.Check(r.Context(), account)

	response := StatusResponse{
		AccountID:             account.ID,
		State:                 string(decision.State),
		RemainingTrialMinutes: decision.RemainingTrialMinutes,
	}
	if rec := decision.Record; rec != nil && rec.SubscriptionStatus != "" {
		response.Subscription = &Subscription{
			Status: string(rec.SubscriptionStatus),
			EndsAt: rec.SubscriptionEnd,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Response already committed, nothing left to do
		return
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.GetStatus(w, r)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
