// Package handlers provides HTTP handlers for account management.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
	"github.com/nvasko/cardsentry/internal/modules/accounts"
)

// Handler provides HTTP handlers for account endpoints.
type Handler struct {
	repo *accounts.Repository
	log  zerolog.Logger
}

// NewHandler creates a new accounts handler.
func NewHandler(repo *accounts.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "accounts").Logger(),
	}
}

// RegisterRoutes registers account routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/credit-limit", h.HandleSetCreditLimit)
		r.Put("/{id}/policy", h.HandleSetPolicy)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// HandleList handles GET /api/accounts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	writeJSON(w, list)
}

// HandleGet handles GET /api/accounts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.repo.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to get account")
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}

	writeJSON(w, account)
}

// HandleSetCreditLimit handles PUT /api/accounts/{id}/credit-limit
// Body: {"limit": 5000} or {"limit": null} to clear the manual override.
func (h *Handler) HandleSetCreditLimit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Limit *float64 `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if body.Limit != nil && *body.Limit <= 0 {
		http.Error(w, "Limit must be positive", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetManualCreditLimit(id, body.Limit); err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to set credit limit")
		http.Error(w, "Failed to set credit limit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

// HandleSetPolicy handles PUT /api/accounts/{id}/policy
func (h *Handler) HandleSetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var policy domain.BoundaryPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if policy.Kind != domain.PolicyNone && !policy.Configured() {
		http.Error(w, "Incomplete boundary policy", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetPolicy(id, policy); err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to set policy")
		http.Error(w, "Failed to set policy", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

// HandleDelete handles DELETE /api/accounts/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to delete account")
		http.Error(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
