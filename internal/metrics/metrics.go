// Package metrics exposes engine activity as prometheus collectors fed from the event bus.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/aristath/launchpad/internal/events"
	"github.com/aristath/launchpad/pkg/units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const namespace = "launchpad"

// Metrics owns a private registry so tests and multiple engines never collide
type Metrics struct {
	registry *prometheus.Registry
	log      zerolog.Logger

	// trades counts executed trades. Labels: side (buy, sell), mode (exact_in, exact_out)
	trades *prometheus.CounterVec
	// baseVolume sums the base leg of every trade in whole units. Labels: side
	baseVolume *prometheus.CounterVec
	// taxCollected sums tax in whole units. Labels: asset (base, token), recipient (creator, treasury)
	taxCollected *prometheus.CounterVec
	// spotPrice is the last traded price in base per token. Labels: token
	spotPrice *prometheus.GaugeVec
	// reserveBase tracks each pool's base reserve in whole units. Labels: token
	reserveBase *prometheus.GaugeVec
	// tokens counts registered tokens by status. Labels: status (bonding, graduated)
	tokens *prometheus.GaugeVec
	// graduations counts graduations. Labels: venues (number of venues deployed to)
	graduations *prometheus.CounterVec
	launches    prometheus.Counter
	claims      prometheus.Counter
	// drift counts reserve/balance mismatches. Labels: synced
	drift *prometheus.CounterVec
	// failures counts rejected operations. Labels: module, code
	failures *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry
func New(log zerolog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		log:      log.With().Str("component", "metrics").Logger(),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "trading", Name: "trades_total",
			Help: "Executed trades",
		}, []string{"side", "mode"}),
		baseVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "trading", Name: "base_volume_total",
			Help: "Base asset traded, in whole units",
		}, []string{"side"}),
		taxCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "trading", Name: "tax_collected_total",
			Help: "Trade tax collected, in whole units of the taxed asset",
		}, []string{"asset", "recipient"}),
		spotPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "spot_price",
			Help: "Last traded price in base per token",
		}, []string{"token"}),
		reserveBase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "reserve_base",
			Help: "Base reserve of each bonding pool, in whole units",
		}, []string{"token"}),
		tokens: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "graduation", Name: "tokens",
			Help: "Registered tokens by status",
		}, []string{"status"}),
		graduations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graduation", Name: "graduations_total",
			Help: "Completed graduations by number of venues",
		}, []string{"venues"}),
		launches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "launch", Name: "launches_total",
			Help: "Completed launches",
		}),
		claims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "airdrop", Name: "claims_total",
			Help: "Airdrop claims paid",
		}),
		drift: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "reserve_drift_total",
			Help: "Pools whose stored reserves differed from ledger balances",
		}, []string{"synced"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "failures_total",
			Help: "Rejected operations by module and error code",
		}, []string{"module", "code"}),
	}
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Attach subscribes the collectors to bus and returns the unsubscribe function
func (m *Metrics) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(events.TradeExecuted, m.onTrade),
		bus.Subscribe(events.TaxCollected, m.onTax),
		bus.Subscribe(events.ReserveUpdated, m.onReserves),
		bus.Subscribe(events.TokenRegistered, m.onRegistered),
		bus.Subscribe(events.TokenGraduated, m.onGraduated),
		bus.Subscribe(events.LaunchCompleted, func(*events.Event) { m.launches.Inc() }),
		bus.Subscribe(events.AirdropClaimed, func(*events.Event) { m.claims.Inc() }),
		bus.Subscribe(events.ReserveDriftDetected, m.onDrift),
		bus.Subscribe(events.ErrorOccurred, m.onError),
	}
	m.log.Debug().Int("subscriptions", len(unsubs)).Msg("Metrics attached to event bus")
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (m *Metrics) onTrade(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TradeExecutedData)
	if !ok {
		return
	}
	mode := "exact_in"
	if data.ExactOut {
		mode = "exact_out"
	}
	m.trades.WithLabelValues(data.Side, mode).Inc()

	// buys spend base, sells receive it
	baseLeg := data.AmountIn
	if data.Side == "sell" {
		baseLeg = data.NetOut
	}
	m.baseVolume.WithLabelValues(data.Side).Add(wholeUnits(baseLeg))

	if price, err := decimal.NewFromString(data.SpotPrice); err == nil {
		m.spotPrice.WithLabelValues(data.Token).Set(price.InexactFloat64())
	}
}

func (m *Metrics) onTax(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TaxCollectedData)
	if !ok {
		return
	}
	asset := "base"
	if data.Asset == data.Token {
		asset = "token"
	}
	m.taxCollected.WithLabelValues(asset, "creator").Add(wholeUnits(data.CreatorAmount))
	m.taxCollected.WithLabelValues(asset, "treasury").Add(wholeUnits(data.TreasuryAmount))
}

func (m *Metrics) onReserves(e *events.Event) {
	if data, ok := e.GetTypedData().(*events.ReserveUpdatedData); ok {
		m.reserveBase.WithLabelValues(data.Token).Set(wholeUnits(data.BaseAfter))
	}
}

func (m *Metrics) onRegistered(*events.Event) {
	m.tokens.WithLabelValues("bonding").Inc()
}

func (m *Metrics) onGraduated(e *events.Event) {
	data, ok := e.GetTypedData().(*events.TokenGraduatedData)
	if !ok {
		return
	}
	m.tokens.WithLabelValues("bonding").Dec()
	m.tokens.WithLabelValues("graduated").Inc()
	m.graduations.WithLabelValues(strconv.Itoa(len(data.Venues))).Inc()
	m.reserveBase.DeleteLabelValues(data.Token)
}

func (m *Metrics) onDrift(e *events.Event) {
	if data, ok := e.GetTypedData().(*events.ReserveDriftData); ok {
		synced := "false"
		if data.Synced {
			synced = "true"
		}
		m.drift.WithLabelValues(synced).Inc()
	}
}

func (m *Metrics) onError(e *events.Event) {
	data, ok := e.GetTypedData().(*events.ErrorEventData)
	if !ok {
		return
	}
	code := data.Code
	if code == "" {
		code = "internal"
	}
	m.failures.WithLabelValues(e.Module, code).Inc()
}

func wholeUnits(amount string) float64 {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return 0
	}
	return units.ToDecimal(v, units.Decimals).InexactFloat64()
}
