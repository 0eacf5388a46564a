// Package handlers provides HTTP handlers for billing-cycle endpoints.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/modules/accounts"
	"github.com/nvasko/cardsentry/internal/modules/cycles"
)

// Handler provides HTTP handlers for cycle endpoints.
type Handler struct {
	cycleRepo    *cycles.Repository
	accountRepo  *accounts.Repository
	orchestrator *cycles.Orchestrator
	log          zerolog.Logger
}

// NewHandler creates a new cycles handler.
func NewHandler(
	cycleRepo *cycles.Repository,
	accountRepo *accounts.Repository,
	orchestrator *cycles.Orchestrator,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		cycleRepo:    cycleRepo,
		accountRepo:  accountRepo,
		orchestrator: orchestrator,
		log:          log.With().Str("handler", "cycles").Logger(),
	}
}

// RegisterRoutes registers cycle routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{id}/cycles", h.HandleListCycles)
	r.Get("/accounts/{id}/cycles/trend", h.HandleSpendTrend)
	r.Post("/accounts/{id}/cycles/refresh", h.HandleRefreshAccount)
	r.Get("/cycles", h.HandleListAllCycles)
	r.Post("/cycles/refresh", h.HandleRefreshAll)
}

// HandleListAllCycles handles GET /api/cycles
// Returns stored cycles across all accounts merged into one list, newest end
// date first, the order the dashboard presents.
func (h *Handler) HandleListAllCycles(w http.ResponseWriter, r *http.Request) {
	accountList, err := h.accountRepo.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	results := make([]cycles.RefreshResult, 0, len(accountList))
	for _, account := range accountList {
		chain, err := h.cycleRepo.ListByAccount(account.ID)
		if err != nil {
			h.log.Error().Err(err).Str("account_id", account.ID).Msg("Failed to list cycles")
			http.Error(w, "Failed to list cycles", http.StatusInternalServerError)
			return
		}
		results = append(results, cycles.RefreshResult{AccountID: account.ID, Cycles: chain})
	}

	writeJSON(w, cycles.Merged(results))
}

// HandleListCycles handles GET /api/accounts/{id}/cycles
// Returns the stored cycle chain, newest start date first.
func (h *Handler) HandleListCycles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	chain, err := h.cycleRepo.ListByAccount(id)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to list cycles")
		http.Error(w, "Failed to list cycles", http.StatusInternalServerError)
		return
	}

	writeJSON(w, chain)
}

// HandleSpendTrend handles GET /api/accounts/{id}/cycles/trend
// Returns spend statistics over the account's closed cycles; 204 when there
// are too few cycles to summarize.
func (h *Handler) HandleSpendTrend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	chain, err := h.cycleRepo.ListByAccount(id)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to list cycles")
		http.Error(w, "Failed to list cycles", http.StatusInternalServerError)
		return
	}

	trend := cycles.ComputeSpendTrend(chain, time.Now())
	if trend == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, trend)
}

// HandleRefreshAccount handles POST /api/accounts/{id}/cycles/refresh
// Recomputes and stores one account's cycles synchronously.
func (h *Handler) HandleRefreshAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.accountRepo.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to get account")
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}

	result := h.orchestrator.RefreshAccount(r.Context(), account)
	if result.Err != nil {
		h.log.Error().Err(result.Err).Str("account_id", id).Msg("Refresh failed")
		http.Error(w, "Refresh failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"skipped": result.Skipped,
		"cycles":  len(result.Cycles),
	})
}

// HandleRefreshAll handles POST /api/cycles/refresh
// Runs a full refresh across all accounts and reports per-account outcomes.
// Progress is also streamed over the events websocket.
func (h *Handler) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.orchestrator.RefreshAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Refresh failed")
		http.Error(w, "Refresh failed", http.StatusInternalServerError)
		return
	}

	type outcome struct {
		AccountID     string `json:"account_id"`
		Cycles        int    `json:"cycles"`
		Skipped       bool   `json:"skipped"`
		FeedUnhealthy bool   `json:"feed_unhealthy,omitempty"`
		Error         string `json:"error,omitempty"`
	}

	outcomes := make([]outcome, 0, len(results))
	for _, res := range results {
		o := outcome{
			AccountID:     res.AccountID,
			Cycles:        len(res.Cycles),
			Skipped:       res.Skipped,
			FeedUnhealthy: res.FeedUnhealthy,
		}
		if res.Err != nil {
			o.Error = res.Err.Error()
		}
		outcomes = append(outcomes, o)
	}

	writeJSON(w, outcomes)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
