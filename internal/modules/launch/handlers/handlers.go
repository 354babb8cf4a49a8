// Package handlers provides HTTP handlers for token launches.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/internal/modules/launch"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/rs/zerolog"
)

// LaunchHandlers contains HTTP handlers for the launch API
type LaunchHandlers struct {
	log     zerolog.Logger
	service *launch.LaunchService
}

// NewLaunchHandlers creates a new launch handlers instance
func NewLaunchHandlers(service *launch.LaunchService, log zerolog.Logger) *LaunchHandlers {
	return &LaunchHandlers{
		service: service,
		log:     log.With().Str("handler", "launch").Logger(),
	}
}

// HandleLaunch runs a launch
// POST /api/launches
func (h *LaunchHandlers) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	var req launch.LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := h.service.Launch(req)
	if err != nil {
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}

	response := map[string]interface{}{
		"launch_id":             result.LaunchID,
		"token":                 result.Token.Hex(),
		"pool":                  result.Pool.Hex(),
		"creator":               result.Creator.Hex(),
		"supply":                result.Supply.String(),
		"airdrop_amount":        result.AirdropAmount.String(),
		"platform_fee":          result.PlatformFee.String(),
		"seed_tokens":           result.SeedTokens.String(),
		"initial_purchase":      result.InitialPurchase.String(),
		"tokens_bought":         result.TokensBought.String(),
		"tokens_bought_display": units.Format(result.TokensBought, 6),
	}
	if result.FirstTrade != nil {
		response["first_trade_id"] = result.FirstTrade.TradeID
	}
	h.writeJSON(w, http.StatusCreated, response)
}

// HandleGetLaunches returns recent launches
// GET /api/launches?limit=
func (h *LaunchHandlers) HandleGetLaunches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}
	launches, err := h.service.History(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get launch history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get launch history")
		return
	}
	if launches == nil {
		launches = []*events.LaunchCompletedData{}
	}
	h.writeJSON(w, http.StatusOK, launches)
}

// HandleGetConfig returns the launch economics
// GET /api/launches/config
func (h *LaunchHandlers) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.Config()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"initial_supply":         cfg.InitialSupply.String(),
		"initial_supply_display": units.Format(cfg.InitialSupply, 0),
		"platform_fee_bps":       cfg.PlatformFeeBps,
		"airdrop_cap_bps":        cfg.AirdropCapBps,
		"purchase_cap_bps":       cfg.PurchaseCapBps,
		"platform_fee_percent":   units.Percent(cfg.PlatformFeeBps, domain.BPS),
		"airdrop_cap_percent":    units.Percent(cfg.AirdropCapBps, domain.BPS),
		"purchase_cap_percent":   units.Percent(cfg.PurchaseCapBps, domain.BPS),
		"curve_kind":             string(cfg.Curve.Kind),
		"curve_linear_bootstrap": cfg.Curve.LinearBootstrap,
		"platform_treasury":      cfg.Treasury.Hex(),
		"launcher":               cfg.Address.Hex(),
	})
}

// writeJSON writes a JSON response
func (h *LaunchHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *LaunchHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
