package service

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the domain metrics of the document services. A nil *Metrics records nothing.
type Metrics struct {
	registrations  *prometheus.CounterVec
	stageSeconds   *prometheus.HistogramVec
	listingSkipped prometheus.Counter
}

// NewMetrics creates the domain metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_registrations_total",
				Help: "Registration attempts by outcome.",
			},
			[]string{"outcome"},
		),
		stageSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "document_registration_stage_seconds",
				Help:    "Time spent reaching each registration state.",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		listingSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "document_listing_skipped_total",
			Help: "Registry ids skipped while listing because the lookup failed.",
		}),
	}

	for _, c := range []prometheus.Collector{m.registrations, m.stageSeconds, m.listingSkipped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) outcome(err error) {
	if m == nil {
		return
	}
	label := "registered"
	if err != nil {
		label = strings.ToLower(Code(err))
	}
	m.registrations.WithLabelValues(label).Inc()
}

func (m *Metrics) stage(s State, d time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(string(s)).Observe(d.Seconds())
}

func (m *Metrics) skipped() {
	if m == nil {
		return
	}
	m.listingSkipped.Inc()
}
