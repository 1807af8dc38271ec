package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the registry protocol.
// Tracks accepted and rejected operations, dispute lifecycle and escrow outflow.
type Metrics struct {
	Operations       *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	DisputesOpened   prometheus.Counter
	Rulings          *prometheus.CounterVec
	PayoutAmount     *prometheus.CounterVec
	SettlementDust   prometheus.Counter
}

// New registers the registry metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tcr_registry_operations_total",
			Help: "Total number of registry operations that committed, by action",
		}, []string{"action"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tcr_registry_rejections_total",
			Help: "Total number of registry operations rejected, by action and error code",
		}, []string{"action", "code"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcr_registry_operation_duration_seconds",
			Help:    "Duration of registry operations including the arbitrator round trip",
			Buckets: durationBuckets,
		}, []string{"action"}),
		DisputesOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "tcr_registry_disputes_opened_total",
			Help: "Total number of disputes raised with the arbitrator",
		}),
		Rulings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tcr_registry_rulings_total",
			Help: "Total number of rulings applied, by ruling",
		}, []string{"ruling"}),
		PayoutAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tcr_registry_payout_amount_total",
			Help: "Total amount released from escrow, by payout reason",
		}, []string{"reason"}),
		SettlementDust: factory.NewCounter(prometheus.CounterOpts{
			Name: "tcr_registry_settlement_dust_total",
			Help: "Total amount left undistributed by tie splits",
		}),
	}
}

// IncOperation records a committed operation.
func (m *Metrics) IncOperation(action string) {
	m.Operations.WithLabelValues(action).Inc()
}

// IncRejection records a rejected operation with its error code.
func (m *Metrics) IncRejection(action, code string) {
	m.Rejections.WithLabelValues(action, code).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(action string, start time.Time) {
	m.OperationLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

// IncDisputeOpened records a dispute raised with the arbitrator.
func (m *Metrics) IncDisputeOpened() {
	m.DisputesOpened.Inc()
}

// IncRuling records an applied ruling.
func (m *Metrics) IncRuling(ruling string) {
	m.Rulings.WithLabelValues(ruling).Inc()
}

// AddPayout records funds leaving escrow.
func (m *Metrics) AddPayout(reason string, amount uint64) {
	m.PayoutAmount.WithLabelValues(reason).Add(float64(amount))
}

// AddDust records the unit a tie split could not distribute.
func (m *Metrics) AddDust(amount uint64) {
	m.SettlementDust.Add(float64(amount))
}
