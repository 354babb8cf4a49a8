// Package handlers provides HTTP handlers for launched token profiles and graduation admin.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/graduation"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// GraduationHandlers contains HTTP handlers for the graduation API
type GraduationHandlers struct {
	log     zerolog.Logger
	service *graduation.GraduationService
}

// NewGraduationHandlers creates a new graduation handlers instance
func NewGraduationHandlers(service *graduation.GraduationService, log zerolog.Logger) *GraduationHandlers {
	return &GraduationHandlers{
		service: service,
		log:     log.With().Str("handler", "graduation").Logger(),
	}
}

// HandleListTokens returns live views of launched tokens
// GET /api/tokens?status=bonding|graduated
func (h *GraduationHandlers) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatus(r.URL.Query().Get("status"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "status must be bonding or graduated")
		return
	}
	views, err := h.service.ListTokens(status)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tokens")
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	response := make([]map[string]interface{}, 0, len(views))
	for i := range views {
		response = append(response, tokenResponse(&views[i]))
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetToken returns the live view of one token
// GET /api/tokens/{token}
func (h *GraduationHandlers) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	view, err := h.service.GetToken(token)
	if err != nil {
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, tokenResponse(view))
}

// HandleGetHistory returns persisted profiles
// GET /api/graduation/history?status=&limit=
func (h *GraduationHandlers) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatus(r.URL.Query().Get("status"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "status must be bonding or graduated")
		return
	}
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}
	records, err := h.service.GetHistory(status, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get profile history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get profile history")
		return
	}
	if records == nil {
		records = []graduation.ProfileRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// HandleGetStatus returns the threshold and per-status token counts
// GET /api/graduation/status
func (h *GraduationHandlers) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	threshold := h.service.Threshold()
	counts, err := h.service.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count profiles")
		h.writeError(w, http.StatusInternalServerError, "Failed to count profiles")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold_bps":     threshold,
		"threshold_percent": units.Percent(threshold, domain.BPS),
		"bonding":           counts[domain.StatusBonding],
		"graduated":         counts[domain.StatusGraduated],
	})
}

// HandleSetThreshold changes the graduation threshold
// POST /api/admin/graduation/threshold
func (h *GraduationHandlers) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin        string `json:"admin"`
		ThresholdBps uint64 `json:"threshold_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Admin) {
		h.writeError(w, http.StatusBadRequest, "Invalid admin address")
		return
	}
	if err := h.service.SetThreshold(common.HexToAddress(req.Admin), req.ThresholdBps); err != nil {
		h.log.Warn().Err(err).Str("admin", req.Admin).Msg("Threshold update rejected")
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	h.HandleGetStatus(w, r)
}

// HandleSetDexConfigs replaces a bonding token's venue configs
// POST /api/admin/tokens/{token}/dex-configs
func (h *GraduationHandlers) HandleSetDexConfigs(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	var req struct {
		Admin      string             `json:"admin"`
		DexConfigs []domain.DexConfig `json:"dex_configs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Admin) {
		h.writeError(w, http.StatusBadRequest, "Invalid admin address")
		return
	}
	if err := h.service.SetDexConfigs(common.HexToAddress(req.Admin), token, req.DexConfigs); err != nil {
		h.log.Warn().Err(err).Str("admin", req.Admin).Str("token", token.Hex()).Msg("Dex config update rejected")
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	h.HandleGetToken(w, r)
}

func tokenResponse(v *graduation.TokenView) map[string]interface{} {
	venuePools := make([]string, len(v.Profile.VenuePools))
	for i, p := range v.Profile.VenuePools {
		venuePools[i] = p.Hex()
	}
	resp := map[string]interface{}{
		"token":         v.Profile.Token.Hex(),
		"creator":       v.Profile.Creator.Hex(),
		"metadata":      v.Profile.Metadata,
		"bonding_pool":  v.Profile.BondingPool.Hex(),
		"status":        string(v.Profile.Status),
		"dex_configs":   v.Profile.DexConfigs,
		"venue_pools":   venuePools,
		"registered_at": v.Profile.RegisteredAt.Format("2006-01-02T15:04:05Z07:00"),
		"seeded":        v.Seeded,
		"ratio_bps":     v.RatioBps,
		"threshold_bps": v.ThresholdBps,
		"ready":         v.Ready,
	}
	if v.Reserves.ReserveToken != nil {
		resp["reserve_token"] = v.Reserves.ReserveToken.String()
		resp["reserve_base"] = v.Reserves.ReserveBase.String()
		resp["reserve_token_display"] = units.Format(v.Reserves.ReserveToken, 6)
		resp["reserve_base_display"] = units.Format(v.Reserves.ReserveBase, 6)
	}
	if v.Profile.Status == domain.StatusGraduated {
		resp["main_venue_pool"] = v.Profile.MainVenuePool.Hex()
		resp["graduated_at"] = v.Profile.GraduatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func tokenParam(r *http.Request) (common.Address, bool) {
	s := chi.URLParam(r, "token")
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseStatus(s string) (domain.GraduationStatus, bool) {
	switch domain.GraduationStatus(s) {
	case "", domain.StatusBonding, domain.StatusGraduated:
		return domain.GraduationStatus(s), true
	}
	return "", false
}

// writeJSON writes a JSON response
func (h *GraduationHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *GraduationHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
