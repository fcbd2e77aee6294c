package rollcall

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rollcall"

// metrics holds the engine's Prometheus collectors.
type metrics struct {
	redemptions     *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsActive  prometheus.Gauge
	rotations       prometheus.Counter
	sweepEnded      prometheus.Counter
	sweepRemoved    prometheus.Counter
	archiveFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "redemptions_total",
			Help:      "Redemption attempts by outcome.",
		}, []string{"outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Sessions currently accepting redemptions.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_rotations_total",
			Help:      "Successful token rotations.",
		}),
		sweepEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_ended_total",
			Help:      "Sessions ended by the sweeper after their window closed.",
		}),
		sweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sweep_removed_total",
			Help:      "Ended sessions removed after the retention period.",
		}),
		archiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "archive_failures_total",
			Help:      "Failed attempts to archive session attendance.",
		}),
	}

	registered := make([]prometheus.Collector, 0, len(m.collectors()))
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, done := range registered {
				reg.Unregister(done)
			}
			return nil, err
		}
		registered = append(registered, c)
	}
	return m, nil
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.redemptions,
		m.sessionsCreated,
		m.sessionsActive,
		m.rotations,
		m.sweepEnded,
		m.sweepRemoved,
		m.archiveFailures,
	}
}

// unregister removes the collectors from reg so a later Engine can register
// its own under the same names.
func (m *metrics) unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// outcomes maps redemption errors to their metric label.
var outcomes = []struct {
	err   error
	label string
}{
	{ErrInvalidToken, "invalid_token"},
	{ErrOutsideWindow, "outside_window"},
	{ErrNotEnrolled, "not_enrolled"},
	{ErrLocationRequired, "location_required"},
	{ErrOutOfRange, "out_of_range"},
	{ErrAlreadyMarked, "already_marked"},
	{ErrTimeout, "timeout"},
}

func redemptionOutcome(err error) string {
	if err == nil {
		return "accepted"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.label
		}
	}
	return "error"
}
