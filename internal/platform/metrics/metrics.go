package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine.
type Metrics struct {
	AttendanceRecorded prometheus.Counter
	TicketsMinted      prometheus.Counter
	ProofsGenerated    *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	NullifierReplays   prometheus.Counter
	VerifyDuration     prometheus.Histogram
}

// New creates and registers all metrics in the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers against a caller-supplied registerer so tests can use
// isolated registries.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttendanceRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkattend_attendance_recorded_total",
			Help: "Total attendance events recorded against reputation credentials",
		}),
		TicketsMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkattend_tickets_minted_total",
			Help: "Total soulbound tickets minted",
		}),
		ProofsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkattend_proofs_generated_total",
			Help: "Proof bundles generated, by proof kind",
		}, []string{"kind"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkattend_verifications_total",
			Help: "Attendance verifications, by outcome",
		}, []string{"result"}),
		NullifierReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkattend_nullifier_replays_total",
			Help: "Verification attempts rejected because the nullifier was already spent",
		}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zkattend_verify_duration_seconds",
			Help:    "Latency of attendance verification",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Nil-safe increment helpers so services can run without metrics in tests.

func (m *Metrics) IncAttendanceRecorded() {
	if m != nil {
		m.AttendanceRecorded.Inc()
	}
}

func (m *Metrics) IncTicketsMinted() {
	if m != nil {
		m.TicketsMinted.Inc()
	}
}

func (m *Metrics) IncProofsGenerated(kind string) {
	if m != nil {
		m.ProofsGenerated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncVerifications(result string) {
	if m != nil {
		m.Verifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncNullifierReplays() {
	if m != nil {
		m.NullifierReplays.Inc()
	}
}

func (m *Metrics) ObserveVerifyDuration(seconds float64) {
	if m != nil {
		m.VerifyDuration.Observe(seconds)
	}
}
