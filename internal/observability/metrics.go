package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the risk core.
type Metrics struct {
	// --- Operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Risk ---
	LiquidationSlices  *prometheus.CounterVec
	LiquidationReward  *prometheus.CounterVec
	DeleverageReduced  *prometheus.CounterVec
	AuctionDiscountBps *prometheus.GaugeVec

	// --- Funding ---
	FundingRateUpdates *prometheus.CounterVec
	FundingRate        *prometheus.GaugeVec
	FundingSettled     *prometheus.CounterVec

	// --- Oracle ---
	OracleStaleRejects *prometheus.CounterVec
	OraclePrice        *prometheus.GaugeVec

	// --- Events ---
	EventsPublished    *prometheus.CounterVec
	EventPublishErrors prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_ops_applied_total",
			Help: "Operations committed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_ops_rejected_total",
			Help: "Operations rejected (validation, margin, staleness)",
		}, []string{"op"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_op_duration_seconds",
			Help:    "End-to-end operation latency including the store transaction",
			Buckets: opBuckets,
		}, []string{"op"}),

		LiquidationSlices: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidation_slices_total",
			Help: "Liquidation slices executed",
		}, []string{"market_id"}),

		LiquidationReward: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidation_reward_total",
			Help: "Total liquidator reward paid (quote units)",
		}, []string{"market_id"}),

		DeleverageReduced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_deleverage_reduced_total",
			Help: "Size force-reduced by auto-deleverage",
		}, []string{"market_id"}),

		AuctionDiscountBps: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_auction_discount_bps",
			Help: "Current Dutch auction discount (bps, 1000 denominator)",
		}, []string{"market_id"}),

		FundingRateUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_funding_rate_updates_total",
			Help: "Funding rate recomputations committed",
		}, []string{"market_id"}),

		FundingRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_funding_rate",
			Help: "Current funding rate",
		}, []string{"market_id"}),

		FundingSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_funding_settled_total",
			Help: "Per-position funding settlements",
		}, []string{"market_id"}),

		OracleStaleRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_oracle_stale_rejects_total",
			Help: "Operations rejected on a stale oracle quote",
		}, []string{"market_id"}),

		OraclePrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_oracle_price",
			Help: "Last oracle mark price observed",
		}, []string{"market_id"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_events_published_total",
			Help: "Events published to the transport",
		}, []string{"event_type"}),

		EventPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_event_publish_errors_total",
			Help: "Event publish failures after commit",
		}),
	}
}

// ObserveOp records one operation outcome. Nil-safe so tests can run
// without a registry.
func (m *Metrics) ObserveOp(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.OpsRejected.WithLabelValues(op).Inc()
		return
	}
	m.OpsApplied.WithLabelValues(op).Inc()
}

// ObserveLiquidation records one executed slice.
func (m *Metrics) ObserveLiquidation(marketID string, reward, discountBps int64) {
	if m == nil {
		return
	}
	m.LiquidationSlices.WithLabelValues(marketID).Inc()
	m.LiquidationReward.WithLabelValues(marketID).Add(float64(reward))
	m.AuctionDiscountBps.WithLabelValues(marketID).Set(float64(discountBps))
}

// ObserveDeleverage records force-reduced size.
func (m *Metrics) ObserveDeleverage(marketID string, size int64) {
	if m == nil {
		return
	}
	m.DeleverageReduced.WithLabelValues(marketID).Add(float64(size))
}

// ObserveFundingRate records a committed rate update.
func (m *Metrics) ObserveFundingRate(marketID string, rate int64) {
	if m == nil {
		return
	}
	m.FundingRateUpdates.WithLabelValues(marketID).Inc()
	m.FundingRate.WithLabelValues(marketID).Set(float64(rate))
}

// ObserveFundingSettled records one per-position settlement.
func (m *Metrics) ObserveFundingSettled(marketID string) {
	if m == nil {
		return
	}
	m.FundingSettled.WithLabelValues(marketID).Inc()
}

// ObserveOracle records a mark price observation.
func (m *Metrics) ObserveOracle(marketID string, price int64) {
	if m == nil {
		return
	}
	m.OraclePrice.WithLabelValues(marketID).Set(float64(price))
}

// ObserveStaleReject records an operation rejected on quote staleness.
func (m *Metrics) ObserveStaleReject(marketID string) {
	if m == nil {
		return
	}
	m.OracleStaleRejects.WithLabelValues(marketID).Inc()
}

// ObservePublish records an event publish outcome.
func (m *Metrics) ObservePublish(eventType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EventPublishErrors.Inc()
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}
