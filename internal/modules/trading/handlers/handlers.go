// Package handlers provides HTTP handlers for trade execution.
package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/aristath/launchpad/internal/domain"
	"github.com/aristath/launchpad/internal/modules/trading"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// TradingHandlers contains HTTP handlers for trading API
type TradingHandlers struct {
	log            zerolog.Logger
	tradingService *trading.TradingService
	base           common.Address
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(
	tradingService *trading.TradingService,
	base common.Address,
	log zerolog.Logger,
) *TradingHandlers {
	return &TradingHandlers{
		tradingService: tradingService,
		base:           base,
		log:            log.With().Str("handler", "trading").Logger(),
	}
}

// HandleGetTrades returns trade history
// GET /api/trades?token=&limit=
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	trades, err := h.tradingService.GetHistory(r.URL.Query().Get("token"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get trade history")
		return
	}

	response := make([]map[string]interface{}, 0, len(trades))
	for _, t := range trades {
		response = append(response, map[string]interface{}{
			"id":                t.ID,
			"token":             t.Token,
			"pool":              t.Pool,
			"trader":            t.Trader,
			"recipient":         t.Recipient,
			"side":              string(t.Side),
			"exact_out":         t.ExactOut,
			"amount_in":         t.AmountIn.String(),
			"gross_out":         t.GrossOut.String(),
			"tax":               t.Tax.String(),
			"net_out":           t.NetOut.String(),
			"amount_in_display": units.Format(t.AmountIn, 6),
			"net_out_display":   units.Format(t.NetOut, 6),
			"spot_price":        t.SpotPrice,
			"executed_at":       t.ExecutedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetTaxTotals returns the tax a token has produced
// GET /api/trades/tax/{token}
func (h *TradingHandlers) HandleGetTaxTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.tradingService.GetTaxTotals(chi.URLParam(r, "token"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get tax totals")
		h.writeError(w, http.StatusInternalServerError, "Failed to get tax totals")
		return
	}
	if totals == nil {
		totals = []trading.TaxTotals{}
	}
	h.writeJSON(w, http.StatusOK, totals)
}

// HandleExactIn executes a trade with a fixed input
// POST /api/trades/exact-in
func (h *TradingHandlers) HandleExactIn(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, false)
}

// HandleExactOut executes a trade with a fixed net output
// POST /api/trades/exact-out
func (h *TradingHandlers) HandleExactOut(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, true)
}

func (h *TradingHandlers) handleTrade(w http.ResponseWriter, r *http.Request, exactOut bool) {
	var req trading.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ExactOut = exactOut

	result, err := h.tradingService.ExecuteTrade(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to execute trade")
		h.writeError(w, http.StatusInternalServerError, "Failed to execute trade")
		return
	}
	if !result.Success {
		h.writeJSON(w, statusForResult(result), result)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleQuote prices a trade against a token's bonding pool
// GET /api/tokens/{token}/quote?side=buy|sell&amount=&exact=in|out
func (h *TradingHandlers) HandleQuote(w http.ResponseWriter, r *http.Request) {
	tokenParam := chi.URLParam(r, "token")
	if !common.IsHexAddress(tokenParam) {
		h.writeError(w, http.StatusBadRequest, "Invalid token address")
		return
	}
	token := common.HexToAddress(tokenParam)

	q := r.URL.Query()
	amount, err := parseAmount(q.Get("amount"), q.Get("units") == "display")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokenIn, tokenOut := h.base, token
	switch strings.ToLower(q.Get("side")) {
	case "", "buy":
	case "sell":
		tokenIn, tokenOut = token, h.base
	default:
		h.writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	exactOut := strings.EqualFold(q.Get("exact"), "out")

	quote, err := h.tradingService.Quote(tokenIn, tokenOut, amount, exactOut)
	if err != nil {
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"side":              string(quote.Side),
		"token":             quote.Token.Hex(),
		"exact_out":         exactOut,
		"amount_in":         quote.AmountIn.String(),
		"gross_out":         quote.GrossOut.String(),
		"tax":               quote.Tax.String(),
		"net_out":           quote.NetOut.String(),
		"amount_in_display": units.Format(quote.AmountIn, 6),
		"net_out_display":   units.Format(quote.NetOut, 6),
	})
}

// HandleGetPolicy returns the current trade policy
// GET /api/policy
func (h *TradingHandlers) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.tradingService.Policy()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"buy_tax_bps":      p.BuyTaxBps,
		"sell_tax_bps":     p.SellTaxBps,
		"max_hold_bps":     p.MaxHoldBps,
		"buy_tax_percent":  units.Percent(p.BuyTaxBps, domain.TaxDenominator),
		"sell_tax_percent": units.Percent(p.SellTaxBps, domain.TaxDenominator),
		"max_hold_percent": units.Percent(p.MaxHoldBps, domain.BPS),
	})
}

// HandleSetPolicy replaces the trade policy
// POST /api/admin/policy
func (h *TradingHandlers) HandleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin string `json:"admin"`
		domain.TradePolicy
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !common.IsHexAddress(req.Admin) {
		h.writeError(w, http.StatusBadRequest, "Invalid admin address")
		return
	}

	if err := h.tradingService.SetPolicy(common.HexToAddress(req.Admin), req.TradePolicy); err != nil {
		h.log.Warn().Err(err).Str("admin", req.Admin).Msg("Policy update rejected")
		h.writeError(w, domain.HTTPStatus(err), err.Error())
		return
	}
	h.HandleGetPolicy(w, r)
}

// parseAmount reads a smallest-unit integer, or a display decimal when display is set
func parseAmount(s string, display bool) (*big.Int, error) {
	if display {
		return units.Parse(s, units.Decimals)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, domain.Errorf(domain.ErrZeroAmount, "amount must be a positive integer")
	}
	return v, nil
}

func statusForResult(result *trading.TradeResult) int {
	switch domain.ErrorKind(result.Kind) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindEconomic:
		return http.StatusUnprocessableEntity
	case domain.KindState:
		if result.Code == domain.ErrUnauthorized.Code {
			return http.StatusForbidden
		}
		if result.Code == domain.ErrPoolNotFound.Code {
			return http.StatusNotFound
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
