// Package handlers provides HTTP handlers for airdrop claims.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/airdrop"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AirdropHandlers contains HTTP handlers for the airdrop API
type AirdropHandlers struct {
	log     zerolog.Logger
	service *airdrop.AirdropService
}

// NewAirdropHandlers creates a new airdrop handlers instance
func NewAirdropHandlers(service *airdrop.AirdropService, log zerolog.Logger) *AirdropHandlers {
	return &AirdropHandlers{
		service: service,
		log:     log.With().Str("handler", "airdrop").Logger(),
	}
}

// HandleList returns every registered airdrop
// GET /api/airdrops
func (h *AirdropHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	drops := h.service.Drops()
	if drops == nil {
		drops = []airdrop.Drop{}
	}
	h.writeJSON(w, http.StatusOK, drops)
}

// HandleGet returns one token's airdrop
// GET /api/airdrops/{token}
func (h *AirdropHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	drop, err := h.service.Drop(token)
	if err != nil {
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, drop)
}

// HandleIsClaimed reports whether an index has claimed
// GET /api/airdrops/{token}/claimed/{index}
func (h *AirdropHandlers) HandleIsClaimed(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid index")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token.Hex(),
		"index":   index,
		"claimed": h.service.IsClaimed(token, index),
	})
}

// HandleClaim pays a claim
// POST /api/airdrops/{token}/claim
func (h *AirdropHandlers) HandleClaim(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	var req airdrop.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.service.Claim(token, req); err != nil {
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token.Hex(),
		"index":   req.Index,
		"account": req.Account,
		"amount":  req.Amount,
		"claimed": true,
	})
}

func tokenParam(r *http.Request) (common.Address, bool) {
	s := chi.URLParam(r, "token")
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// writeJSON writes a JSON response
func (h *AirdropHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *AirdropHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
